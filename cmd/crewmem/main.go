// =============================================================================
// CrewMem 操作入口
// =============================================================================
// 对一个本地记忆命名空间做保存/检索/实体列表操作，用于排查与演示
//
// 使用方法:
//
//	crewmem save --crew demo --kind short_term --text "a finding"
//	crewmem search --crew demo --kind short_term --query "finding" --top-k 5
//	crewmem entities --crew demo --limit 20
//	crewmem version
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/crewmem"
	"github.com/BaSui01/crewmem/adapter"
	"github.com/BaSui01/crewmem/config"
	"github.com/BaSui01/crewmem/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "save":
		runSave(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "entities":
		runEntities(os.Args[2:])
	case "version":
		fmt.Printf("crewmem %s (built %s)\n", Version, BuildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags 各子命令共享的参数。
type commonFlags struct {
	configPath string
	crew       string
	group      string
	kind       string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "Path to config file")
	fs.StringVar(&cf.crew, "crew", "", "Crew identity (explicit id)")
	fs.StringVar(&cf.group, "group", "local", "Tenant group id")
	fs.StringVar(&cf.kind, "kind", "short_term", "Memory kind: short_term, long_term, entity")
	return cf
}

// buildMemory 装配子系统并构建一个 crew 的记忆句柄。
func buildMemory(cf *commonFlags) (*crewmem.System, *crewmem.CrewMemory, error) {
	loader := config.NewLoader()
	if cf.configPath != "" {
		loader = loader.WithConfigPath(cf.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)

	sys, err := crewmem.New(cfg, crewmem.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem, err := sys.BuildCrewMemory(ctx, crewmem.BuildInput{
		ExplicitID: cf.crew,
		CrewName:   cf.crew,
		GroupID:    cf.group,
	})
	if err != nil {
		_ = sys.Close()
		return nil, nil, err
	}
	return sys, mem, nil
}

func adapterFor(mem *crewmem.CrewMemory, kind string) (memoryHandle, error) {
	var a *adapter.MemoryAdapter
	switch types.MemoryKind(kind) {
	case types.MemoryShortTerm:
		a = mem.ShortTerm()
	case types.MemoryLongTerm:
		a = mem.LongTerm()
	case types.MemoryEntity:
		a = mem.Entity()
	default:
		return nil, fmt.Errorf("unknown memory kind %q", kind)
	}
	if a == nil {
		return nil, fmt.Errorf("memory kind %s is not active for this crew", kind)
	}
	return a, nil
}

// memoryHandle 是子命令需要的适配器能力子集。
type memoryHandle interface {
	Save(ctx context.Context, req types.SaveRequest)
	Search(ctx context.Context, query string, topK int, filters map[string]string) []types.SearchResult
	GetEntities(ctx context.Context, limit int) []string
}

// =============================================================================
// 💾 save 命令
// =============================================================================

func runSave(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	cf := addCommonFlags(fs)
	text := fs.String("text", "", "Text to save")
	agent := fs.String("agent", "", "Agent role")
	fs.Parse(args)

	if *text == "" {
		fmt.Fprintln(os.Stderr, "save requires --text")
		os.Exit(1)
	}

	sys, mem, err := buildMemory(cf)
	if err != nil {
		fatal(err)
	}
	defer sys.Close()

	handle, err := adapterFor(mem, cf.kind)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	switch types.MemoryKind(cf.kind) {
	case types.MemoryLongTerm:
		handle.Save(ctx, types.LongTermSave{Item: types.LongTermItem{
			Task:  *text,
			Agent: *agent,
		}})
	case types.MemoryEntity:
		handle.Save(ctx, types.EntitySave{Text: *text, RawAgent: *agent})
	default:
		handle.Save(ctx, types.ShortTermSave{Value: *text, RawAgent: *agent})
	}

	// Save 是异步的,Close 前桥会排空在途任务。
	fmt.Println("saved")
}

// =============================================================================
// 🔍 search 命令
// =============================================================================

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addCommonFlags(fs)
	query := fs.String("query", "", "Query text (empty lists recent)")
	topK := fs.Int("top-k", 10, "Maximum results")
	fs.Parse(args)

	sys, mem, err := buildMemory(cf)
	if err != nil {
		fatal(err)
	}
	defer sys.Close()

	handle, err := adapterFor(mem, cf.kind)
	if err != nil {
		fatal(err)
	}

	results := handle.Search(context.Background(), *query, *topK, nil)
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%2d. [%.3f] %s\n", i+1, r.Score, r.Context)
	}
}

// =============================================================================
// 🧾 entities 命令
// =============================================================================

func runEntities(args []string) {
	fs := flag.NewFlagSet("entities", flag.ExitOnError)
	cf := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "Maximum entities")
	fs.Parse(args)

	cf.kind = string(types.MemoryEntity)
	sys, mem, err := buildMemory(cf)
	if err != nil {
		fatal(err)
	}
	defer sys.Close()

	handle, err := adapterFor(mem, cf.kind)
	if err != nil {
		fatal(err)
	}

	names := handle.GetEntities(context.Background(), *limit)
	if len(names) == 0 {
		fmt.Println("no entities")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.Set(cfg.Level)

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`CrewMem - crew memory subsystem CLI

Usage:
  crewmem save     --crew <id> --kind <kind> --text <text>   Save one memory
  crewmem search   --crew <id> --kind <kind> --query <text>  Search memories
  crewmem entities --crew <id> --limit <n>                   List known entities
  crewmem version                                            Show version

Common flags:
  --config  Path to YAML config (CREWMEM_* env vars override)
  --group   Tenant group id (default "local")
  --kind    short_term | long_term | entity`)
}
