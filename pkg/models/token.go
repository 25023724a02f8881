package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type SendMethod string

const (
	SendCopy SendMethod = "copy"
	SendFile SendMethod = "file"
)

const UnlimitedUses = -1

type Token struct {
	ID            int64      `gorm:"primaryKey;autoIncrement"`
	Token         string     `gorm:"uniqueIndex;not null"`
	SendMethod    SendMethod `gorm:"not null"`
	MediaType     *string
	FileID        *string
	FromChatID    *int64
	FromMessageID *int64
	Filename      string    `gorm:"not null"`
	AddedBy       int64     `gorm:"not null"`
	AddedAt       time.Time `gorm:"not null"`
	UsesAllowed   int       `gorm:"not null"`
	UsedCount     int       `gorm:"not null"`
	ExpiresAt     Expiry
}

func (Token) TableName() string {
	return "tokens"
}

// Exhausted reports whether the use quota is spent.
func (t *Token) Exhausted() bool {
	return t.UsesAllowed != UnlimitedUses && t.UsedCount >= t.UsesAllowed
}

// Expiry is an optional absolute expiry stored as RFC 3339 text. Stored
// values that do not parse are kept in Raw and never count as expired.
type Expiry struct {
	Time  time.Time
	Valid bool
	Raw   string
}

func ExpiresAt(t time.Time) Expiry {
	return Expiry{Time: t.UTC(), Valid: true}
}

func (e Expiry) IsSet() bool {
	return e.Valid || e.Raw != ""
}

func (e Expiry) Expired(now time.Time) bool {
	return e.Valid && now.After(e.Time)
}

func (e Expiry) String() string {
	switch {
	case e.Valid:
		return e.Time.Format(time.RFC3339)
	case e.Raw != "":
		return e.Raw
	default:
		return "none"
	}
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (e *Expiry) Scan(src any) error {
	*e = Expiry{}
	var s string
	switch v := src.(type) {
	case nil:
		return nil
	case time.Time:
		*e = ExpiresAt(v)
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("expiry: unsupported type %T", src)
	}
	if s == "" {
		return nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*e = ExpiresAt(t)
			return nil
		}
	}
	e.Raw = s
	return nil
}

func (e Expiry) Value() (driver.Value, error) {
	switch {
	case e.Valid:
		return e.Time.UTC().Format(time.RFC3339Nano), nil
	case e.Raw != "":
		return e.Raw, nil
	default:
		return nil, nil
	}
}
