package config

import (
	"slices"
	"testing"
)

func TestOrigins(t *testing.T) {
	c := Config{CORSOrigins: " http://a.example, ,http://b.example "}
	if got := c.Origins(); !slices.Equal(got, []string{"http://a.example", "http://b.example"}) {
		t.Fatalf("origins %v", got)
	}
	if got := (&Config{}).Origins(); len(got) != 0 {
		t.Fatalf("origins %v", got)
	}
}
