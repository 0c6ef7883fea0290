package agent

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const (
	identityVersion = "v2"
	anonymousPrefix = "anon-"
)

// UserIdentity names the speaker of a turn as seen by the transport that
// delivered it.
type UserIdentity struct {
	Source  string
	ActorID string
}

func (id UserIdentity) Valid() bool {
	return strings.TrimSpace(id.Source) != "" && strings.TrimSpace(id.ActorID) != ""
}

func (id UserIdentity) Canonical() string {
	return strings.ToLower(strings.TrimSpace(id.Source)) + "|" + strings.TrimSpace(id.ActorID)
}

// UserID is stable for the same source and actor.
func (id UserIdentity) UserID() string {
	sum := sha1.Sum([]byte(id.Canonical()))
	return identityVersion + ":" + hex.EncodeToString(sum[:12])
}

// ResolveUserID returns explicit when set, a stable id derived from source
// and actor when both are known, and otherwise a fresh anonymous id.
func ResolveUserID(explicit, source, actor string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	identity := UserIdentity{Source: source, ActorID: actor}
	if identity.Valid() {
		return identity.UserID()
	}
	return anonymousPrefix + uuid.NewString()
}

// requestUserID names the speaker of a bus request. Requests without a user
// get an anonymous id derived from source and request id, so a redelivered
// request lands on the same profile.
func requestUserID(userID, source, requestID string) string {
	if strings.TrimSpace(userID) != "" || strings.TrimSpace(requestID) == "" {
		return ResolveUserID(userID, "", "")
	}
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(source)) + "|" + strings.TrimSpace(requestID)))
	return anonymousPrefix + hex.EncodeToString(sum[:12])
}

func isAnonymous(userID string) bool {
	return strings.HasPrefix(userID, anonymousPrefix)
}
