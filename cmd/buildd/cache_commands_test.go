package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buildd/internal/taskcache"
)

func TestCachePutAndGetFromStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	payload := []byte("compiled object bytes")
	want := taskcache.SumKey(payload).String()

	out, _, err := runCLI(t, env, strings.NewReader(string(payload)), "cache", "put")
	if err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Fatalf("put printed %q, want %q", strings.TrimSpace(out), want)
	}

	out, _, err = runCLI(t, env, nil, "cache", "get", strings.ToUpper(want))
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if out != string(payload) {
		t.Fatalf("get returned %q", out)
	}

	if _, err := os.Stat(filepath.Join(env.cacheDir, want)); err != nil {
		t.Fatalf("expected entry file: %v", err)
	}
}

func TestCachePutFileWithExplicitKey(t *testing.T) {
	env := setupCLITestEnv(t)
	src := filepath.Join(env.baseDir, "artifact.bin")
	if err := os.WriteFile(src, []byte("artifact"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	key := strings.Repeat("ab", 20)

	out, _, err := runCLI(t, env, nil, "cache", "put", "--key", key, src)
	if err != nil {
		t.Fatalf("cache put: %v", err)
	}
	requireContains(t, out, key)

	dst := filepath.Join(env.baseDir, "out", "artifact.bin")
	if _, _, err := runCLI(t, env, nil, "cache", "get", key, "--output", dst); err != nil {
		t.Fatalf("cache get --output: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "artifact" {
		t.Fatalf("output = %q", got)
	}
}

func TestCachePutFileHashesContent(t *testing.T) {
	env := setupCLITestEnv(t)
	src := filepath.Join(env.baseDir, "artifact.bin")
	if err := os.WriteFile(src, []byte("hash me"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	out, _, err := runCLI(t, env, nil, "cache", "put", src)
	if err != nil {
		t.Fatalf("cache put: %v", err)
	}
	requireContains(t, out, taskcache.SumKey([]byte("hash me")).String())
}

func TestCacheGetMissAndBadKey(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, nil, "cache", "get", strings.Repeat("0", 64))
	if err == nil || !strings.Contains(err.Error(), "no cached result") {
		t.Fatalf("expected miss error, got %v", err)
	}
	if _, _, err := runCLI(t, env, nil, "cache", "get", "not-hex"); err == nil {
		t.Fatal("expected invalid key to fail")
	}
}

func TestCacheStatsListAndVerify(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, body := range []string{"one", "two"} {
		if _, _, err := runCLI(t, env, strings.NewReader(body), "cache", "put"); err != nil {
			t.Fatalf("cache put %q: %v", body, err)
		}
	}

	out, _, err := runCLI(t, env, nil, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries")
	requireContains(t, out, "local directory cache in "+env.cacheDir)

	out, _, err = runCLI(t, env, nil, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, taskcache.SumKey([]byte("one")).String())
	requireContains(t, out, taskcache.SumKey([]byte("two")).String())

	out, _, err = runCLI(t, env, nil, "cache", "verify")
	if err != nil {
		t.Fatalf("cache verify: %v", err)
	}
	requireContains(t, out, "All entries verified")

	corrupt := taskcache.SumKey([]byte("one")).String()
	if err := os.WriteFile(filepath.Join(env.cacheDir, corrupt), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, _, err := runCLI(t, env, nil, "cache", "verify"); err != nil {
		t.Fatalf("default verify only checks readability: %v", err)
	}
	out, _, err = runCLI(t, env, nil, "cache", "verify", "--content-addressed")
	if !errors.Is(err, errCacheCorrupt) {
		t.Fatalf("expected corruption error, got %v", err)
	}
	requireContains(t, out, corrupt)
}

func TestCacheVerifyAcceptsExplicitKeys(t *testing.T) {
	env := setupCLITestEnv(t)
	fingerprint := taskcache.SumKey([]byte("compileJava inputs")).String()
	if _, _, err := runCLI(t, env, strings.NewReader("compiled class bytes"), "cache", "put", "--key", fingerprint); err != nil {
		t.Fatalf("cache put: %v", err)
	}

	out, _, err := runCLI(t, env, nil, "cache", "verify")
	if err != nil {
		t.Fatalf("cache verify on a healthy cache: %v\n%s", err, out)
	}
	requireContains(t, out, "Checked 1 entries")
	requireContains(t, out, "All entries verified")
}

func TestCachePath(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, nil, "cache", "path")
	if err != nil {
		t.Fatalf("cache path: %v", err)
	}
	if strings.TrimSpace(out) != env.cacheDir {
		t.Fatalf("cache path = %q, want %q", strings.TrimSpace(out), env.cacheDir)
	}
}
