package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailableDiskSize(t *testing.T) {
	dir := t.TempDir()
	size, err := AvailableDiskSize(dir)
	t.Log(size/1024/1024/1024, "G")
	assert.Nil(t, err)
	assert.True(t, size > 0)

	// 文件路径取所在目录
	path := filepath.Join(dir, "a.data")
	assert.Nil(t, os.WriteFile(path, []byte("xixi"), 0644))
	size2, err := AvailableDiskSize(path)
	assert.Nil(t, err)
	assert.True(t, size2 > 0)

	// 不存在的文件同样取所在目录
	_, err = AvailableDiskSize(filepath.Join(dir, "missing.data"))
	assert.Nil(t, err)
}
