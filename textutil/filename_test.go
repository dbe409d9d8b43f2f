package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Đắc Nhân Tâm", "dac_nhan_tam"},
		{"Tô Hoài_Dế Mèn_170", "to_hoai_de_men_170"},
		{"../../etc/passwd", "etc_passwd"},
		{"  ", "book"},
		{"", "book"},
		{"already-safe_name.epub", "already-safe_name.epub"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFilename(tt.in), "input %q", tt.in)
	}
}
