/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFilesystemStorePutGet(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	ctx := context.Background()

	key := SolutionKey("run-1")
	if key != "solutions/run-1.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if err := store.Put(ctx, key, []byte(`{"tokens":[]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"tokens":[]}` {
		t.Fatalf("unexpected object %q", got)
	}

	if err := store.Put(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = store.Get(ctx, key)
	if string(got) != `{}` {
		t.Fatalf("overwrite not visible: %q", got)
	}
}

func TestFilesystemStoreNotFound(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	if _, err := store.Get(context.Background(), "solutions/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilesystemStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x"} {
		if err := store.Put(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestNewS3StoreStaticCredentials(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "plans",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if store.bucket != "plans" {
		t.Fatalf("unexpected bucket %q", store.bucket)
	}
}
