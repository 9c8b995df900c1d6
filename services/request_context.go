package services

import "strconv"

// RequestContext identifies the caller of an operation. Anonymous callers
// carry only a SessionKey.
type RequestContext struct {
	UserID          int64
	SessionKey      string
	IsAuthenticated bool
	IsAdmin         bool
}

func Anonymous(sessionKey string) RequestContext {
	return RequestContext{SessionKey: sessionKey}
}

func ForUser(userID int64, sessionKey string) RequestContext {
	return RequestContext{UserID: userID, SessionKey: sessionKey, IsAuthenticated: true}
}

// Actor names the caller in audit rows.
func (rc RequestContext) Actor() string {
	switch {
	case rc.IsAdmin:
		return "admin:" + strconv.FormatInt(rc.UserID, 10)
	case rc.IsAuthenticated:
		return "user:" + strconv.FormatInt(rc.UserID, 10)
	default:
		return "guest"
	}
}

func (rc RequestContext) userIDPtr() *int64 {
	if !rc.IsAuthenticated {
		return nil
	}
	id := rc.UserID
	return &id
}
