package snapshot

import (
	"bytes"
	"os"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/serialization"
)

// Save 将节点写为 path 处的快照文件。
// 先在内存中组装完整容器，再一次性落盘，避免留下写了一半的文件。
func (c *Container) Save(path string, node *serialization.Node) error {
	var buf bytes.Buffer
	if err := c.Write(&buf, node); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return merr.WrapErrIoFailed(path, err)
	}
	return nil
}

// Load 读回 path 处的快照文件并还原节点。
func (c *Container) Load(path string) (*serialization.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merr.WrapErrIoFailed(path, err)
	}
	return c.Read(bytes.NewReader(data))
}
