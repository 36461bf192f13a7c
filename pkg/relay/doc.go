// Package relay 提供 P2P 社交应用的在线状态与消息中继引擎。
//
// 引擎维护 uuid 到存活 WebSocket 连接的权威映射，在其上叠加四件事：
// 心跳活性检测（错过一次应答即驱逐）、带离线队列的点对点消息路由、
// 好友申请状态机，以及注册表变化后的在线好友列表重播。
//
// 存储通过 Stores 注入，可组合进程内、SQLite 与 Redis 后端；
// 离线接收方的推送提示通过可选的 Notifier 投递。
//
// 基本用法：
//
//	mem := store.NewMemory()
//	engine, err := relay.New(relay.Stores{Profiles: mem, Queue: mem},
//		relay.WithHeartbeatInterval(15*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine.Run()
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		engine.HandleUpgrade(w, r)
//	})
package relay
