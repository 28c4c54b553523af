package serialization

import (
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// LookupFunc 是某一类型的自定义身份查找函数。
// FindByClassAndID 在内部索引未命中时按类型名回退到它。
type LookupFunc func(id string) (Serializable, bool)

// ObjectRegistry 是单次反序列化会话内的身份映射，
// 循环引用与前向引用都依赖它把同一 _id 解析到同一实例。
//
// 注册表不做内部加锁：一次解码会话只属于一个 goroutine，
// 跨 goroutine 共享同一注册表时由调用方自行同步。
// 会话结束后注册表即可废弃；显式保留并传入后续解码调用，
// 可以让对象身份跨多棵树共享。
type ObjectRegistry struct {
	byID      map[string]Serializable
	byClassID map[string]map[string]Serializable
	lookups   map[string]LookupFunc
}

// NewObjectRegistry 创建一个空的对象注册表。
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{
		byID:      make(map[string]Serializable),
		byClassID: make(map[string]map[string]Serializable),
		lookups:   make(map[string]LookupFunc),
	}
}

// Register 以 id 登记实例。
//
// 同一 id 重复登记同一实例为幂等；绑定到不同实例返回
// ErrObjectAlreadyRegistered。nil 实例或空 id 返回 ErrParameterInvalid。
func (r *ObjectRegistry) Register(obj Serializable, id string) error {
	if obj == nil {
		return merr.WrapErrParameterInvalidMsg("object must not be nil")
	}
	if id == "" {
		return merr.WrapErrParameterInvalidMsg("object id must not be empty")
	}

	if existing, ok := r.byID[id]; ok {
		if existing == obj {
			return nil
		}
		return merr.WrapErrObjectAlreadyRegistered(id)
	}

	r.byID[id] = obj

	class := obj.TypeName()
	ids, ok := r.byClassID[class]
	if !ok {
		ids = make(map[string]Serializable)
		r.byClassID[class] = ids
	}
	ids[id] = obj
	return nil
}

// RegisterMany 批量登记 id 到实例的映射，逐条规则与 Register 一致。
// 失败的条目不影响其余条目，所有错误聚合后一次返回。
func (r *ObjectRegistry) RegisterMany(objs map[string]Serializable) error {
	var errs []error
	for id, obj := range objs {
		if err := r.Register(obj, id); err != nil {
			errs = append(errs, err)
		}
	}
	return merr.Combine(errs...)
}

// FindByID 按身份标识查找实例。
func (r *ObjectRegistry) FindByID(id string) (Serializable, bool) {
	obj, ok := r.byID[id]
	return obj, ok
}

// FindByClassAndID 按类型名 + 身份标识查找实例，
// 适用于 id 只在类型内部唯一的场景。内部索引未命中时
// 依次询问该类型的自定义查找函数。
func (r *ObjectRegistry) FindByClassAndID(class, id string) (Serializable, bool) {
	if ids, ok := r.byClassID[class]; ok {
		if obj, ok := ids[id]; ok {
			return obj, true
		}
	}
	if lookup, ok := r.lookups[class]; ok {
		return lookup(id)
	}
	return nil, false
}

// RegisterCustomLookup 为某一类型挂接自定义查找函数，
// 用于把外部对象池（缓存、实体管理器等）接入身份解析。
// 同一类型重复挂接时后者覆盖前者。
func (r *ObjectRegistry) RegisterCustomLookup(class string, fn LookupFunc) {
	if class == "" || fn == nil {
		return
	}
	r.lookups[class] = fn
}

// Clear 清空全部登记项与自定义查找函数。
func (r *ObjectRegistry) Clear() {
	r.byID = make(map[string]Serializable)
	r.byClassID = make(map[string]map[string]Serializable)
	r.lookups = make(map[string]LookupFunc)
}

// Len 返回已登记的实例数量。
func (r *ObjectRegistry) Len() int {
	return len(r.byID)
}
