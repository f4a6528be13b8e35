package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	token, exp, err := iss.Issue(Identity{UserID: "u-1", UserName: "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}
	id, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "u-1" || id.UserName != "Ada" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	token, _, _ := NewIssuer("one", time.Hour).Issue(Identity{UserID: "u"})
	if _, err := NewIssuer("two", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss := NewIssuer("s", time.Minute)
	base := time.Now()
	iss.now = func() time.Time { return base }
	token, _, err := iss.Issue(Identity{UserID: "u"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	iss.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := iss.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestIssueRequiresSecretAndUser(t *testing.T) {
	if _, _, err := NewIssuer("", 0).Issue(Identity{UserID: "u"}); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, _, err := NewIssuer("s", 0).Issue(Identity{}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "u"})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u" {
		t.Fatalf("identity not carried: %+v %v", id, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context should carry no identity")
	}
}
