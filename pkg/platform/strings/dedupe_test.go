package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"single", []string{"pending"}, []string{"pending"}},
		{"comma separated", []string{"Pending, FAILED"}, []string{"pending", "failed"}},
		{"repeated params dedupe", []string{"pending", "failed,pending"}, []string{"pending", "failed"}},
		{"blanks dropped", []string{" , ,completed,"}, []string{"completed"}},
		{"nothing", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.values...))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo", ""}))
	assert.Empty(t, DedupeAndTrimLower([]string{}))
}
