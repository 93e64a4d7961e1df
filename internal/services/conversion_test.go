package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/types"
)

func TestClaim_BindsOwnedConversion(t *testing.T) {
	owner := uuid.New()
	repo := &fakeConversionRepo{conv: &types.ImageConversion{
		ID:        uuid.New(),
		UserID:    owner,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}}
	svc := &conversionService{convRepo: repo}

	got, err := svc.Claim(context.Background(), nil, owner, repo.conv.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Bound {
		t.Fatal("conversion should be bound after claim")
	}
}

func TestClaim_Idempotent(t *testing.T) {
	owner := uuid.New()
	// Bound rows outlive their expiry; re-claiming one stays a no-op.
	repo := &fakeConversionRepo{conv: &types.ImageConversion{
		ID:        uuid.New(),
		UserID:    owner,
		Bound:     true,
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	svc := &conversionService{convRepo: repo}

	for i := 0; i < 2; i++ {
		got, err := svc.Claim(context.Background(), nil, owner, repo.conv.ID)
		if err != nil {
			t.Fatalf("claim pass %d: %v", i, err)
		}
		if !got.Bound {
			t.Fatalf("pass %d: conversion should stay bound", i)
		}
	}
}

func TestClaim_ExpiredConversion(t *testing.T) {
	owner := uuid.New()
	repo := &fakeConversionRepo{conv: &types.ImageConversion{
		ID:        uuid.New(),
		UserID:    owner,
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	svc := &conversionService{convRepo: repo}

	if _, err := svc.Claim(context.Background(), nil, owner, repo.conv.ID); !errors.Is(err, ErrConversionUnbindable) {
		t.Fatalf("err = %v, want ErrConversionUnbindable", err)
	}
	if repo.conv.Bound {
		t.Fatal("expired claim must not bind the row")
	}
}

func TestClaim_ForeignConversion(t *testing.T) {
	repo := &fakeConversionRepo{conv: &types.ImageConversion{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}}
	svc := &conversionService{convRepo: repo}

	if _, err := svc.Claim(context.Background(), nil, uuid.New(), repo.conv.ID); !errors.Is(err, ErrConversionNotOwned) {
		t.Fatalf("err = %v, want ErrConversionNotOwned", err)
	}
	if repo.conv.Bound {
		t.Fatal("foreign claim must not bind the row")
	}
}

func TestClaim_MissingConversion(t *testing.T) {
	svc := &conversionService{convRepo: &fakeConversionRepo{}}
	if _, err := svc.Claim(context.Background(), nil, uuid.New(), uuid.New()); !errors.Is(err, ErrConversionGone) {
		t.Fatalf("err = %v, want ErrConversionGone", err)
	}
}

func TestConversionGet_ExpiryVisibility(t *testing.T) {
	owner := uuid.New()
	repo := &fakeConversionRepo{conv: &types.ImageConversion{
		ID:        uuid.New(),
		UserID:    owner,
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	svc := &conversionService{convRepo: repo}

	if _, err := svc.Get(context.Background(), owner, repo.conv.ID); !errors.Is(err, ErrConversionGone) {
		t.Fatalf("expired unbound: err = %v, want ErrConversionGone", err)
	}

	repo.conv.Bound = true
	if _, err := svc.Get(context.Background(), owner, repo.conv.ID); err != nil {
		t.Fatalf("bound conversion past expiry: %v", err)
	}
}

// fakeConversionRepo holds a single row and applies the repo's bind
// contract: set bound only for an owned, unexpired, unbound row.
type fakeConversionRepo struct {
	conv *types.ImageConversion
}

func (f *fakeConversionRepo) Create(_ context.Context, _ *gorm.DB, conv *types.ImageConversion) (*types.ImageConversion, error) {
	f.conv = conv
	return conv, nil
}

func (f *fakeConversionRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ImageConversion, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, nil
	}
	return f.conv, nil
}

func (f *fakeConversionRepo) Bind(_ context.Context, _ *gorm.DB, id, ownerID uuid.UUID) (*types.ImageConversion, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, nil
	}
	if !f.conv.Bound && f.conv.UserID == ownerID && time.Now().Before(f.conv.ExpiresAt) {
		f.conv.Bound = true
	}
	return f.conv, nil
}

func (f *fakeConversionRepo) ReapExpired(_ context.Context, _ *gorm.DB, _ time.Duration) ([]*types.ImageConversion, error) {
	return nil, nil
}
