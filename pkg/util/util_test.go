package util

import (
	"testing"
)

func TestToMapAnyPassthrough(t *testing.T) {
	src := map[string]any{"key": "value"}
	got := ToMapAny(src)
	if got["key"] != "value" {
		t.Errorf("ToMapAny passthrough lost key: %v", got)
	}
}

func TestToMapAnyStruct(t *testing.T) {
	type sample struct {
		Name string `json:"name"`
	}
	got := ToMapAny(sample{Name: "research"})
	if got["name"] != "research" {
		t.Errorf("ToMapAny struct = %v, want name=research", got)
	}
}

func TestToMapAnyUnmarshalable(t *testing.T) {
	got := ToMapAny(make(chan int))
	if len(got) != 0 {
		t.Errorf("ToMapAny(chan) = %v, want empty map", got)
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, c := range cases {
		if got := ClampInt(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("ClampInt(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("UTIL_TEST_INT", "7")
	if got := EnvInt("UTIL_TEST_INT", 3, 1); got != 7 {
		t.Errorf("EnvInt = %d, want 7", got)
	}
	t.Setenv("UTIL_TEST_INT", "bogus")
	if got := EnvInt("UTIL_TEST_INT", 3, 1); got != 3 {
		t.Errorf("EnvInt(bogus) = %d, want default 3", got)
	}
	t.Setenv("UTIL_TEST_INT", "0")
	if got := EnvInt("UTIL_TEST_INT", 3, 1); got != 1 {
		t.Errorf("EnvInt(below min) = %d, want 1", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("UTIL_TEST_BOOL", "yes")
	if !EnvBool("UTIL_TEST_BOOL", false) {
		t.Error("EnvBool(yes) = false, want true")
	}
	t.Setenv("UTIL_TEST_BOOL", "off")
	if EnvBool("UTIL_TEST_BOOL", true) {
		t.Error("EnvBool(off) = true, want false")
	}
	t.Setenv("UTIL_TEST_BOOL", "maybe")
	if !EnvBool("UTIL_TEST_BOOL", true) {
		t.Error("EnvBool(invalid) should fall back to default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	type cfg struct {
		Name     string  `env:"UTIL_TEST_NAME" default:"fallback"`
		Count    int     `env:"UTIL_TEST_COUNT" default:"5" min:"1"`
		Ratio    float64 `env:"UTIL_TEST_RATIO" default:"0.5" min:"0"`
		Enabled  bool    `env:"UTIL_TEST_ENABLED" default:"true"`
		Untagged string
	}
	t.Setenv("UTIL_TEST_NAME", "from-env")
	t.Setenv("UTIL_TEST_COUNT", "")
	t.Setenv("UTIL_TEST_RATIO", "1.25")
	t.Setenv("UTIL_TEST_ENABLED", "0")

	var c cfg
	LoadFromEnv(&c)

	if c.Name != "from-env" {
		t.Errorf("Name = %q, want from-env", c.Name)
	}
	if c.Count != 5 {
		t.Errorf("Count = %d, want default 5", c.Count)
	}
	if c.Ratio != 1.25 {
		t.Errorf("Ratio = %v, want 1.25", c.Ratio)
	}
	if c.Enabled {
		t.Error("Enabled = true, want false from env")
	}
	if c.Untagged != "" {
		t.Errorf("Untagged = %q, want untouched", c.Untagged)
	}
}

func TestLoadFromEnvNilSafe(t *testing.T) {
	LoadFromEnv(nil)       // must not panic
	var p *struct{ X int } // nil pointer
	LoadFromEnv(p)
}
