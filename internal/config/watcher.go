package config

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRouting 监听配置文件变化，热更新模型路由相关字段
// 监听地址、上游密钥、超时等核心配置保持进程生命周期内不变
func (c *Config) WatchRouting() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// 监听目录而不是文件本身，编辑器的原子写入会替换 inode
	dir := filepath.Dir(c.ConfigPath)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Base(c.ConfigPath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				c.reloadRouting()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ 配置文件监听错误: %v", err)
			}
		}
	}()

	return nil
}

func (c *Config) reloadRouting() {
	raw, err := readTomlConfig(c.ConfigPath)
	if err != nil {
		log.Printf("⚠️ 重新加载配置失败，保留当前路由配置: %v", err)
		return
	}
	routing, err := loadRouting(raw)
	if err != nil {
		log.Printf("⚠️ 路由配置非法，保留当前路由配置: %v", err)
		return
	}

	previous := c.routing.Swap(routing)
	if previous == nil || *previous != *routing {
		log.Printf("✅ 模型路由配置已热更新 (big=%s, middle=%s, small=%s)",
			routing.BigModel, routing.MiddleModel, routing.SmallModel)
	}
}
