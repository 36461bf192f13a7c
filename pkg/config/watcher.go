package config

import "github.com/fsnotify/fsnotify"

// startWatch 开始监控配置文件变更。
// 调用方必须持有 mu 锁；viper 的回调在独立协程触发。
func (m *Manager) startWatch() {
	if m.watching {
		return
	}

	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.mu.RLock()
		watching := m.watching
		onChange := m.onChange
		m.mu.RUnlock()

		if !watching || onChange == nil {
			return
		}

		// viper 已重新读取文件，这里只做结构化解析
		app, err := m.App()
		if err != nil {
			return
		}
		onChange(app)
	})
	m.viper.WatchConfig()
	m.watching = true
}

// StartWatch 开始监控配置文件变更，重复调用无副作用
func (m *Manager) StartWatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startWatch()
}

// StopWatch 停止响应配置文件变更。
// viper 未提供停止底层 fsnotify watcher 的方法，
// 此方法仅标记状态使回调不再生效。
func (m *Manager) StopWatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = false
}
