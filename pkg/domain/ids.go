// Package domain holds the typed identifiers shared across modules.
//
// Every aggregate is addressed by a UUID, wrapped in its own named type so the
// compiler rejects passing an OrderID where a UserID is expected. Parse
// functions are the trust boundary for identifiers arriving from HTTP paths,
// bodies and tokens.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "findiff/pkg/domain-errors"
)

type (
	UserID    uuid.UUID
	RoleID    uuid.UUID
	SessionID uuid.UUID
	OrderID   uuid.UUID
	ArticleID uuid.UUID
	BookID    uuid.UUID
	AuthorID  uuid.UUID
	KPIID     uuid.UUID
	EventID   uuid.UUID
)

const maxIDLength = 64

func parseID[T ~[16]byte](s, kind string) (T, error) {
	var zero T
	if s == "" {
		return zero, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return T(parsed), nil
}

func ParseUserID(s string) (UserID, error)       { return parseID[UserID](s, "user id") }
func ParseRoleID(s string) (RoleID, error)       { return parseID[RoleID](s, "role id") }
func ParseSessionID(s string) (SessionID, error) { return parseID[SessionID](s, "session id") }
func ParseOrderID(s string) (OrderID, error)     { return parseID[OrderID](s, "order id") }
func ParseArticleID(s string) (ArticleID, error) { return parseID[ArticleID](s, "article id") }
func ParseBookID(s string) (BookID, error)       { return parseID[BookID](s, "book id") }
func ParseAuthorID(s string) (AuthorID, error)   { return parseID[AuthorID](s, "author id") }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id RoleID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id OrderID) String() string   { return uuid.UUID(id).String() }
func (id ArticleID) String() string { return uuid.UUID(id).String() }
func (id BookID) String() string    { return uuid.UUID(id).String() }
func (id AuthorID) String() string  { return uuid.UUID(id).String() }
func (id KPIID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RoleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ArticleID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BookID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AuthorID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id KPIID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// JSON encodes identifiers as their canonical string form.

func (id UserID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id RoleID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id OrderID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id ArticleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id BookID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id AuthorID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id KPIID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RoleID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OrderID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ArticleID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BookID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuthorID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *KPIID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
