package embedding

import "testing"

func TestFallbackVector_Deterministic(t *testing.T) {
	a := fallbackVector("hello", 768)
	b := fallbackVector("hello", 768)

	if len(a) != 768 {
		t.Fatalf("len = %d, want 768", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestFallbackVector_DistinctTexts(t *testing.T) {
	a := fallbackVector("hello", 64)
	b := fallbackVector("world", 64)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestFallbackVector_Bounded(t *testing.T) {
	v := fallbackVector("some text with enough entropy", 768)
	for i, x := range v {
		if x < -1 || x >= 1 {
			t.Errorf("v[%d] = %v, out of [-1, 1)", i, x)
		}
	}
}

func TestFallbackVector_CyclicPadding(t *testing.T) {
	// MD5+SHA1+SHA256 digests yield 68 bytes = 17 base values; dimensions
	// beyond that repeat the base cyclically.
	v := fallbackVector("abc", 40)
	for i := 17; i < len(v); i++ {
		if v[i] != v[i%17] {
			t.Errorf("v[%d] = %v, want cyclic repeat of v[%d] = %v", i, v[i], i%17, v[i%17])
		}
	}
}

func TestFallbackVector_Truncation(t *testing.T) {
	short := fallbackVector("abc", 5)
	long := fallbackVector("abc", 17)
	if len(short) != 5 {
		t.Fatalf("len = %d, want 5", len(short))
	}
	for i := range short {
		if short[i] != long[i] {
			t.Errorf("truncated vector diverges at %d", i)
		}
	}
}
