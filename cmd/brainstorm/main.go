package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brainstorm/brainstorm/internal/agent"
	"github.com/brainstorm/brainstorm/internal/inference"
	"github.com/brainstorm/brainstorm/internal/models"
	"github.com/brainstorm/brainstorm/internal/store"
)

const version = "0.1.0"

func main() {
	var (
		useMemory   = flag.Bool("memory", false, "use in-memory stores (no Redis/Badger/SQLite)")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address for conversation history")
		badgerPath  = flag.String("badger", "~/.brainstorm/projects", "Badger path for project items")
		sqlitePath  = flag.String("sqlite", "~/.brainstorm/activity.db", "SQLite path for the activity trail")
		backendURL  = flag.String("backend", "", "inference backend URL (default http://localhost:11434)")
		model       = flag.String("model", "", "model name (default qwen2.5:7b)")
		projectID   = flag.String("project", "default", "project to brainstorm on")
		rateLimit   = flag.Int("rpm", 120, "inference requests per minute (0 = unlimited)")
	)
	flag.Parse()

	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	inferenceConfig := inference.DefaultConfig()
	if *backendURL != "" {
		inferenceConfig.BackendURL = *backendURL
	}
	if *model != "" {
		inferenceConfig.Model = *model
	}
	client := inference.NewClient(inferenceConfig)

	availableModels, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("⚠️  Warning: %v\n", err)
	}
	modelFound := false
	for _, m := range availableModels {
		if m == inferenceConfig.Model {
			modelFound = true
			break
		}
	}
	if !modelFound && len(availableModels) > 0 {
		fmt.Printf("⚠️  Model '%s' not found on the backend\n", inferenceConfig.Model)
	}
	fmt.Printf("✓ Backend: %s | Model: %s\n", inferenceConfig.BackendURL, inferenceConfig.Model)

	poolConfig := inference.DefaultPoolConfig()
	poolConfig.InferenceConfig = inferenceConfig
	pool := inference.NewPool(poolConfig)
	limiter := inference.NewRateLimiter(*rateLimit)
	invoker := inference.NewInvoker(pool, limiter)

	conversations, projects, trail := buildStores(*useMemory, *redisAddr, *badgerPath, *sqlitePath)
	defer conversations.Close()
	defer projects.Close()
	defer trail.Close()

	buffer := agent.NewResultBuffer(5*time.Minute, time.Minute)
	engine := agent.NewEngine(agent.DefaultEngineConfig(), agent.Deps{
		Router:        agent.NewRouter(invoker),
		Cache:         agent.NewResponseCache(nil),
		Buffer:        buffer,
		Reconciler:    agent.NewReconciler(projects),
		Conversations: conversations,
		Projects:      projects,
		Trail:         trail,
	})

	registered := []agent.Agent{
		agent.NewResponderAgent(invoker),
		agent.NewVerificationAgent(invoker),
		agent.NewRecorderAgent(invoker),
		agent.NewConsistencyAgent(invoker),
		agent.NewQualityAgent(invoker),
		agent.NewGapDetectorAgent(invoker),
		agent.NewResearchAgent(invoker),
	}
	for _, a := range registered {
		if err := engine.RegisterAgent(a); err != nil {
			fmt.Printf("❌ Failed to register %s: %v\n", a.ID(), err)
			os.Exit(1)
		}
	}

	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down...")
		cancel()
		engine.Close()
		conversations.Close()
		projects.Close()
		trail.Close()
		os.Exit(0)
	}()

	fmt.Printf("🧠 Brainstorming on project '%s'. Type /help for commands.\n\n", *projectID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handleCommand(ctx, input, *projectID, engine, buffer, projects, trail, pool)
			continue
		}

		start := time.Now()
		reply := engine.HandleUtterance(ctx, *projectID, input)
		fmt.Printf("\nAssistant: %s\n", reply.Message)
		fmt.Printf("⏱  %.2fs | background pipeline running, /poll for updates\n\n", time.Since(start).Seconds())
	}

	engine.Close()
}

func buildStores(useMemory bool, redisAddr, badgerPath, sqlitePath string) (store.ConversationStore, store.ProjectStore, store.ActivityTrail) {
	if useMemory {
		fmt.Println("✓ Using in-memory stores")
		return store.NewMemoryConversationStore(), store.NewMemoryProjectStore(), store.NewMemoryActivityTrail()
	}

	var conversations store.ConversationStore
	redisConfig := store.DefaultRedisConfig()
	redisConfig.Addr = redisAddr
	if rs, err := store.NewRedisConversationStore(redisConfig); err != nil {
		fmt.Printf("⚠️  Redis unavailable (%v), conversation history is in-memory\n", err)
		conversations = store.NewMemoryConversationStore()
	} else {
		conversations = rs
	}

	var projects store.ProjectStore
	if bs, err := store.NewBadgerProjectStore(badgerPath); err != nil {
		fmt.Printf("⚠️  Badger unavailable (%v), project items are in-memory\n", err)
		projects = store.NewMemoryProjectStore()
	} else {
		projects = bs
	}

	var trail store.ActivityTrail
	if st, err := store.NewSQLiteActivityTrail(sqlitePath); err != nil {
		fmt.Printf("⚠️  SQLite unavailable (%v), activity trail is in-memory\n", err)
		trail = store.NewMemoryActivityTrail()
	} else {
		trail = st
	}

	return conversations, projects, trail
}

func handleCommand(ctx context.Context, cmd, projectID string, engine *agent.Engine, buffer *agent.ResultBuffer, projects store.ProjectStore, trail store.ActivityTrail, pool *inference.Pool) {
	switch strings.Fields(cmd)[0] {
	case "/help":
		fmt.Println("\nCommands: /help /poll /state /stats /activity /exit")
		fmt.Println("  /poll     - consume the latest background delta")
		fmt.Println("  /state    - show recorded project items by bucket")
		fmt.Println("  /stats    - cache, breaker and pool counters")
		fmt.Println("  /activity - recent background runs")
		fmt.Println()
	case "/poll":
		delta, ok := buffer.Consume(projectID)
		if !ok {
			fmt.Print("\nNo updates yet.\n\n")
			return
		}
		if delta.Empty() {
			fmt.Print("\nBackground pipeline finished: nothing new recorded.\n\n")
			return
		}
		fmt.Printf("\n✓ %d item(s) recorded:\n", len(delta.Added))
		for _, item := range delta.Added {
			fmt.Printf("  [%s] %s (confidence %d)\n", item.State, item.Text, item.Citation.Confidence)
		}
		fmt.Println()
	case "/state":
		items, err := projects.ReadItems(ctx, projectID)
		if err != nil {
			fmt.Printf("❌ Failed to read project state: %v\n\n", err)
			return
		}
		if len(items) == 0 {
			fmt.Print("\nNothing recorded yet.\n\n")
			return
		}
		state := models.PartitionItems(items)
		printBucket("Decided", state.Decided)
		printBucket("Exploring", state.Exploring)
		printBucket("Parked", state.Parked)
		fmt.Println()
	case "/stats":
		stats := engine.Stats()
		fmt.Printf("\nCache: %d hits, %d misses, %d evictions, %d entries\n",
			stats.Cache.Hits, stats.Cache.Misses, stats.Cache.Evictions, stats.Cache.Entries)
		for service, b := range stats.Breakers {
			fmt.Printf("Breaker %-14s %s (%d failures)\n", service+":", b.State, b.FailureCount)
		}
		metrics := pool.Metrics()
		fmt.Printf("Pool: %d requests, %d ok, %d errors, avg %.2fs\n\n",
			metrics.TotalRequests, metrics.CompletedOK, metrics.CompletedError,
			metrics.AverageLatency.Seconds())
	case "/activity":
		runs, err := trail.RecentRuns(ctx, projectID, 10)
		if err != nil {
			fmt.Printf("❌ Failed to read activity: %v\n\n", err)
			return
		}
		if len(runs) == 0 {
			fmt.Print("\nNo background runs yet.\n\n")
			return
		}
		fmt.Println()
		for _, run := range runs {
			status := "ok"
			if run.Failure != "" {
				status = "failed: " + run.Failure
			}
			fmt.Printf("  %s intent=%s agents=%s items=%d %.2fs %s\n",
				run.StartedAt.Format("15:04:05"), run.Intent,
				strings.Join(run.AgentsRun, ","), run.ItemsAdded,
				run.Duration.Seconds(), status)
		}
		fmt.Println()
	case "/exit", "/quit":
		fmt.Println("Goodbye! 👋")
		engine.Close()
		os.Exit(0)
	default:
		fmt.Print("\nUnknown command. Type /help.\n\n")
	}
}

func printBucket(label string, items []models.ProjectItem) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", label)
	for _, item := range items {
		fmt.Printf("  • %s (%s, confidence %d)\n", item.Text, item.Citation.Origin, item.Citation.Confidence)
	}
}

func printBanner() {
	fmt.Printf(`
╔═════════════════════════════════════════════════════════╗
║          BrainStorm Collaborative Assistant %s        ║
║        Fast replies, deferred decision recording        ║
╚═════════════════════════════════════════════════════════╝

`, version)
}
