package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"translated", gorm.ErrDuplicatedKey, true},
		{"wrapped translated", fmt.Errorf("写入失败: %w", gorm.ErrDuplicatedKey), true},
		{"mysql 1062", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"wrapped mysql 1062", fmt.Errorf("写入失败: %w", &mysql.MySQLError{Number: 1062}), true},
		{"other mysql error", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}, false},
		{"not found", gorm.ErrRecordNotFound, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsDuplicateKey(tt.err); got != tt.want {
			t.Fatalf("%s: IsDuplicateKey = %v, want %v", tt.name, got, tt.want)
		}
	}
}
