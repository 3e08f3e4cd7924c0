package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameChannel   = "channel"
	FieldNameClientID  = "clientID"
	FieldNameShmPath   = "shmPath"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldChannel 返回一个包含 KVMFR 通道名（frame/pointer）的 zap 字段。
func FieldChannel(channel string) zap.Field {
	return zap.String(FieldNameChannel, channel)
}

func FieldClientID(id uint32) zap.Field {
	return zap.Uint32(FieldNameClientID, id)
}

func FieldShmPath(path string) zap.Field {
	return zap.String(FieldNameShmPath, path)
}
