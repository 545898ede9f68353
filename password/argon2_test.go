package password

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestArgon2(t *testing.T, cfg Argon2Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestArgon2RoundTrip(t *testing.T) {
	h := newTestArgon2(t, testArgon2Config())

	first, err := h.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(first, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", first)
	}
	if strings.Contains(first, "=$") || strings.HasSuffix(first, "=") {
		t.Fatalf("expected unpadded base64: %s", first)
	}

	second, err := h.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of one password are identical")
	}

	for _, tc := range []struct {
		password string
		want     bool
	}{
		{"Str0ng!Passw0rd", true},
		{"str0ng!Passw0rd", false},
		{"", false},
	} {
		ok, err := h.Verify(tc.password, first)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tc.password, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q) = %v, want %v", tc.password, ok, tc.want)
		}
	}
}

func TestArgon2AcceptsPaddedBase64(t *testing.T) {
	h := newTestArgon2(t, testArgon2Config())
	enc, err := h.Hash("padding-Test1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	parts := strings.Split(enc, "$")
	for _, i := range []int{4, 5} {
		raw, err := base64.RawStdEncoding.DecodeString(parts[i])
		if err != nil {
			t.Fatalf("decode part %d: %v", i, err)
		}
		parts[i] = base64.StdEncoding.EncodeToString(raw)
	}
	padded := strings.Join(parts, "$")

	ok, err := h.Verify("padding-Test1!", padded)
	if err != nil || !ok {
		t.Fatalf("padded hash rejected: ok=%v err=%v", ok, err)
	}
}

func TestArgon2Malformed(t *testing.T) {
	h := newTestArgon2(t, testArgon2Config())
	valid, err := h.Hash("x-Valid-1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cases := map[string]string{
		"not phc":         "not-a-phc-hash",
		"wrong algorithm": strings.Replace(valid, "$argon2id$", "$argon2i$", 1),
		"wrong version":   strings.Replace(valid, "$v=19$", "$v=16$", 1),
		"reordered":       strings.Replace(valid, "m=8192,t=1,p=1", "t=1,m=8192,p=1", 1),
		"memory too low":  strings.Replace(valid, "m=8192", "m=1024", 1),
		"memory too high": strings.Replace(valid, "m=8192", "m=4194304", 1),
		"time too high":   strings.Replace(valid, "t=1,", "t=1000,", 1),
		"bad salt":        strings.Join(append(strings.Split(valid, "$")[:4], "!!!", strings.Split(valid, "$")[5]), "$"),
	}
	for name, enc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("x-Valid-1!", enc); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("Verify err = %v, want ErrMalformedHash", err)
			}
		})
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := newTestArgon2(t, testArgon2Config())
	enc, err := weak.Hash("upgrade-Me-1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if up, err := weak.NeedsUpgrade(enc); err != nil || up {
		t.Fatalf("same config: up=%v err=%v", up, err)
	}

	stronger := testArgon2Config()
	stronger.Time = 2
	if up, err := newTestArgon2(t, stronger).NeedsUpgrade(enc); err != nil || !up {
		t.Fatalf("higher time: up=%v err=%v", up, err)
	}

	longerKey := testArgon2Config()
	longerKey.KeyLength = 64
	if up, err := newTestArgon2(t, longerKey).NeedsUpgrade(enc); err != nil || !up {
		t.Fatalf("key length change: up=%v err=%v", up, err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Argon2Config){
		"memory":      func(c *Argon2Config) { c.Memory = 1024 },
		"time":        func(c *Argon2Config) { c.Time = 0 },
		"parallelism": func(c *Argon2Config) { c.Parallelism = 0 },
		"salt":        func(c *Argon2Config) { c.SaltLength = 8 },
		"key":         func(c *Argon2Config) { c.KeyLength = 8 },
	} {
		cfg := testArgon2Config()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: weak config accepted", name)
		}
	}
}

func TestArgon2HashEmpty(t *testing.T) {
	if _, err := newTestArgon2(t, testArgon2Config()).Hash(""); err == nil {
		t.Fatal("empty password hashed")
	}
}
