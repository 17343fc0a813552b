package tomlkeys

import "testing"

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		"[timeouts]\ncapture-result-ms = 4096\n",
		"timeouts.capture-result-ms = 4096\n",
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.GetInt("timeouts.capture-result-ms")
		if !ok || value != 4096 {
			t.Fatalf("expected 4096, got %d (%v)", value, ok)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	store, err := Decode([]byte("[Collector]\nMAX_READER_IMAGES = 7\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.GetInt("collector.max-reader-images")
	if !ok || value != 7 {
		t.Fatalf("expected normalized key to resolve 7, got %d", value)
	}
}

func TestTypedGetters(t *testing.T) {
	store, err := Decode([]byte("count = 7\nlevel = \"debug\"\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	if _, ok := store.GetString("count"); ok {
		t.Fatalf("expected count to not be a string")
	}
	if _, ok := store.GetInt("level"); ok {
		t.Fatalf("expected level to not be an int")
	}
	if level, ok := store.GetString("level"); !ok || level != "debug" {
		t.Fatalf("expected level debug, got %q", level)
	}
}

func TestAsInt64(t *testing.T) {
	if value, ok := AsInt64(float64(3)); !ok || value != 3 {
		t.Fatalf("expected whole float to convert, got %d", value)
	}
	if _, ok := AsInt64(2.5); ok {
		t.Fatalf("expected fractional float to be rejected")
	}
	if _, ok := AsInt64(nil); ok {
		t.Fatalf("expected nil to be rejected")
	}
}
