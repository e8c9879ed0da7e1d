package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"chat-room/pkg/chatclient"
)

// -------------------- 压测参数 --------------------

type options struct {
	baseURL  string
	clients  int
	duration time.Duration
	interval time.Duration
}

func parseOptions() options {
	var o options
	flag.StringVar(&o.baseURL, "url", "http://localhost:8080", "服务地址")
	flag.IntVar(&o.clients, "clients", 20, "并发客户端数")
	flag.DurationVar(&o.duration, "duration", 60*time.Second, "压测时长")
	flag.DurationVar(&o.interval, "interval", 2*time.Second, "每个客户端的发送间隔")
	flag.Parse()
	return o
}

// -------------------- 统计 --------------------

type counters struct {
	sent        atomic.Int64
	rateLimited atomic.Int64
	failed      atomic.Int64
	dialFailed  atomic.Int64
}

func (c *counters) report(elapsed time.Duration, clients []*chatclient.Client) {
	fmt.Println("\n==================== 压测报告 ====================")
	fmt.Printf("时长:           %s\n", elapsed.Round(time.Second))
	fmt.Printf("发送成功:       %d\n", c.sent.Load())
	fmt.Printf("本地限流拒绝:   %d\n", c.rateLimited.Load())
	fmt.Printf("发送失败:       %d\n", c.failed.Load())
	fmt.Printf("连接失败:       %d\n", c.dialFailed.Load())
	if elapsed > 0 {
		fmt.Printf("吞吐:           %.2f 条/秒\n", float64(c.sent.Load())/elapsed.Seconds())
	}

	// 抽样一个客户端验证本地存储收敛
	for _, cl := range clients {
		if cl == nil {
			continue
		}
		snap := cl.Snapshot()
		groups := cl.Groups()
		fmt.Printf("抽样快照:       %d 条消息 / %d 个分组\n", len(snap), len(groups))
		fmt.Printf("在场连接数:     %d\n", cl.PresenceCount())
		break
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("进程内存:       %.1f MB (goroutines=%d)\n",
		float64(m.Alloc)/1024/1024, runtime.NumGoroutine())
	fmt.Println("==================================================")
}

// -------------------- 消息负载 --------------------

var phrases = []string{
	"大家好",
	"今天天气不错",
	"有人在吗",
	"刚看完一集新番",
	"这个功能好用",
	"周末打算去爬山",
	"下班了下班了",
}

func randomBody(r *rand.Rand, clientID int) string {
	return fmt.Sprintf("%s (c%d-%d)", phrases[r.Intn(len(phrases))], clientID, r.Intn(10000))
}

// -------------------- 客户端压测循环 --------------------

func runClient(ctx context.Context, id int, o options, c *counters, out chan<- *chatclient.Client, wg *sync.WaitGroup) {
	defer wg.Done()

	client, err := chatclient.Dial(ctx, chatclient.Options{
		BaseURL:      o.baseURL,
		GuestName:    fmt.Sprintf("bench-%d", id),
		SendCooldown: o.interval / 2,
	})
	if err != nil {
		c.dialFailed.Add(1)
		out <- nil
		return
	}
	out <- client
	defer client.Close()

	// 事件循环独立跑：对账、在场计数、心跳都在里面
	go client.Run(ctx)

	r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	ticker := time.NewTicker(o.interval + time.Duration(r.Intn(500))*time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := client.Send(ctx, randomBody(r, id), nil)
			switch {
			case err == nil:
				c.sent.Add(1)
			case errors.Is(err, chatclient.ErrRateLimited):
				c.rateLimited.Add(1)
			default:
				c.failed.Add(1)
			}
		}
	}
}

func main() {
	o := parseOptions()

	fmt.Println("==================== 聊天室压测 ====================")
	fmt.Printf("目标:     %s\n", o.baseURL)
	fmt.Printf("客户端:   %d\n", o.clients)
	fmt.Printf("时长:     %s\n", o.duration)
	fmt.Printf("发送间隔: %s\n", o.interval)

	ctx, cancel := context.WithTimeout(context.Background(), o.duration)
	defer cancel()

	var c counters
	var wg sync.WaitGroup
	clientCh := make(chan *chatclient.Client, o.clients)

	start := time.Now()
	for i := 0; i < o.clients; i++ {
		wg.Add(1)
		go runClient(ctx, i, o, &c, clientCh, &wg)
		// 错峰建连，避免瞬时打满握手
		time.Sleep(50 * time.Millisecond)
	}

	clients := make([]*chatclient.Client, 0, o.clients)
	for i := 0; i < o.clients; i++ {
		clients = append(clients, <-clientCh)
	}

	wg.Wait()
	c.report(time.Since(start), clients)

	if c.dialFailed.Load() == int64(o.clients) {
		fmt.Println("所有客户端连接失败，请确认服务已启动")
		os.Exit(1)
	}
}
