package config

// Option 配置选项函数
type Option func(*Manager)

// WithConfigFile 指定配置文件完整路径
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// WithConfigName 设置配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(m *Manager) {
		m.configName = name
	}
}

// WithConfigPaths 设置配置文件搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(m *Manager) {
		m.configPaths = paths
	}
}

// WithEnvPrefix 设置环境变量前缀，空字符串禁用环境变量
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.envPrefix = prefix
	}
}

// WithDefaults 追加默认配置值
func WithDefaults(defaults map[string]any) Option {
	return func(m *Manager) {
		m.defaults = defaults
	}
}

// WithAutoWatch 加载后自动开启文件监控
func WithAutoWatch(watch bool) Option {
	return func(m *Manager) {
		m.autoWatch = watch
	}
}

// WithOnChange 设置配置变更回调，收到重新解析后的应用配置
func WithOnChange(fn func(*App)) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}
