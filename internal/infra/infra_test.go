package infra

import (
	"context"
	"errors"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstraintViolations(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	check := &pgconn.PgError{Code: "23514"}

	if !IsUniqueViolation(unique) || IsCheckViolation(unique) {
		t.Fatalf("wrapped 23505 must be a unique violation only")
	}
	if !IsCheckViolation(check) || IsUniqueViolation(check) {
		t.Fatalf("23514 must be a check violation only")
	}
	if IsUniqueViolation(errors.New("23505")) || IsUniqueViolation(nil) {
		t.Fatalf("plain errors are not constraint violations")
	}
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewRedisClient(ctx, "")
	if err != nil || client != nil {
		t.Fatalf("empty url must yield no client, got %v %v", client, err)
	}

	if _, err := NewRedisClient(ctx, "::not a url"); err == nil {
		t.Fatalf("expected parse error")
	}

	mr := miniredis.RunT(t)
	client, err = NewRedisClient(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.Close()
	if _, err := NewRedisClient(ctx, "redis://"+mr.Addr()); err == nil {
		t.Fatalf("expected ping failure once redis is down")
	}
}
