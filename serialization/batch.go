package serialization

import (
	"context"

	"github.com/lk2023060901/serilux-go/pkg/util/conc"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// SerializeMany 并行编码多个相互独立的对象图，结果保持输入顺序。
//
// 并行是安全的：编码只读取类型注册表，不改写对象。
// 各对象图在编码期间不被其他 goroutine 修改由调用方保证。
// 所有失败聚合为一个错误返回。
func SerializeMany(ctx context.Context, objs []Serializable, opts ...SerializeOption) ([]*Node, error) {
	if len(objs) == 0 {
		return nil, nil
	}

	pool := conc.NewDefaultPool[*Node]()
	defer pool.Release()

	futures := make([]*conc.Future[*Node], len(objs))
	for i, obj := range objs {
		obj := obj
		futures[i] = pool.Submit(func() (*Node, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return Serialize(obj, opts...)
		})
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return nil, err
	}

	nodes := make([]*Node, len(futures))
	for i, f := range futures {
		nodes[i] = f.Value()
	}
	return nodes, nil
}

// InstantiateMany 并行解码多棵标记树，结果保持输入顺序。
//
// 默认每棵树使用独立的对象注册表。调用方通过 WithObjectRegistry
// 共享注册表时，批量退化为顺序执行：注册表没有内部同步。
func InstantiateMany(ctx context.Context, nodes []*Node, opts ...DeserializeOption) ([]Serializable, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	if cfg := newDeserializeConfig(opts...); cfg.registry != nil {
		return instantiateSequential(ctx, nodes, opts...)
	}

	pool := conc.NewDefaultPool[Serializable]()
	defer pool.Release()

	futures := make([]*conc.Future[Serializable], len(nodes))
	for i, node := range nodes {
		node := node
		futures[i] = pool.Submit(func() (Serializable, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return Instantiate(node, opts...)
		})
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return nil, err
	}

	out := make([]Serializable, len(futures))
	for i, f := range futures {
		out[i] = f.Value()
	}
	return out, nil
}

func instantiateSequential(ctx context.Context, nodes []*Node, opts ...DeserializeOption) ([]Serializable, error) {
	out := make([]Serializable, len(nodes))
	var errs []error
	for i, node := range nodes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		obj, err := Instantiate(node, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = obj
	}
	if err := merr.Combine(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
