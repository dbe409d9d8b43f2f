package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Việt Nam", "viet nam"},
		{"Đắc Nhân Tâm", "dac nhan tam"},
		{"Émile Zola", "emile zola"},
		{"UPPER", "upper"},
		{"already plain", "already plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestFoldIdempotent(t *testing.T) {
	in := "Nguyễn Nhật Ánh"
	once := Fold(in)
	assert.Equal(t, once, Fold(once))
}
