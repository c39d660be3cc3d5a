// HotPath CLI - drives a bytecode module through the tiered engine and
// reports what got compiled.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/hotpath/jit"
	"github.com/chazu/hotpath/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	iterations := flag.Int("n", 10000, "Calls to drive through each function")
	fnName := flag.String("fn", "", "Run only the named function (default: all)")
	configPath := flag.String("config", "", "TOML engine config file")
	disasm := flag.Bool("disasm", false, "Disassemble the module and exit")
	topN := flag.Int("top", 10, "Entries in the hot-function report")
	verbose := flag.Int("v", 0, "Log verbosity (0=quiet, 1=info, 2=debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hotpath [options] [module.hpbc] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Loads a serialized bytecode module (or a built-in demo when no path is\n")
		fmt.Fprintf(os.Stderr, "given), drives its functions through the tiered engine, checks native\n")
		fmt.Fprintf(os.Stderr, "results against the interpreter, and prints engine statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hotpath                          # Run the demo workload\n")
		fmt.Fprintf(os.Stderr, "  hotpath -n 100000 prog.hpbc 3 4  # Drive prog.hpbc with args 3, 4\n")
		fmt.Fprintf(os.Stderr, "  hotpath -disasm prog.hpbc        # Print the disassembly\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	module, args, err := loadModule(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(bytecode.Disassemble(module))
		return
	}

	config := jit.DefaultConfig()
	if *configPath != "" {
		if config, err = jit.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	engine, err := jit.NewEngine(module, config, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	vm := bytecode.NewVM(module)
	exitCode := 0

	for i := range module.Functions {
		fn := &module.Functions[i]
		if *fnName != "" && fn.Name != *fnName {
			continue
		}
		callArgs := argsFor(fn, args)

		var lastNative, lastInterp float64
		var nativeErr, interpErr error
		for call := 0; call < *iterations; call++ {
			if res, ok := engine.NotifyCall(fn, callArgs); ok {
				lastNative, nativeErr = res.Value, res.Err
				continue
			}
			lastInterp, interpErr = vm.RunNumeric(fn, callArgs)
		}

		// Replay once through each tier so divergence is visible even
		// when every timed call took the same path.
		lastInterp, interpErr = vm.RunNumeric(fn, callArgs)
		if entry, ok := engine.NotifyCall(fn, callArgs); ok {
			lastNative, nativeErr = entry.Value, entry.Err
			if lastNative != lastInterp || !sameError(nativeErr, interpErr) {
				fmt.Fprintf(os.Stderr, "MISMATCH %s: native (%g, %v) interpreted (%g, %v)\n",
					fn.Name, lastNative, nativeErr, lastInterp, interpErr)
				exitCode = 1
				continue
			}
		}
		if interpErr != nil {
			fmt.Printf("%-16s trap: %v\n", fn.Name, interpErr)
		} else {
			fmt.Printf("%-16s = %g\n", fn.Name, lastInterp)
		}
	}

	printStats(engine, *topN)
	os.Exit(exitCode)
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}

// loadModule reads a serialized module from the first positional argument,
// treating the rest as numeric call arguments. With no arguments it
// builds the demo module.
func loadModule(cliArgs []string) (*bytecode.Module, []float64, error) {
	if len(cliArgs) == 0 {
		return demoModule(), nil, nil
	}
	data, err := os.ReadFile(cliArgs[0])
	if err != nil {
		return nil, nil, err
	}
	module, err := bytecode.Deserialize(data)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", cliArgs[0], err)
	}
	var args []float64
	for _, raw := range cliArgs[1:] {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("argument %q is not a number", raw)
		}
		args = append(args, n)
	}
	return module, args, nil
}

// argsFor pads or trims the CLI arguments to the function's arity.
func argsFor(fn *bytecode.FuncInfo, args []float64) []float64 {
	out := make([]float64, fn.ParamCount)
	copy(out, args)
	return out
}

// demoModule builds a small workload: two compilable numeric functions
// and one that stays on the interpreter.
func demoModule() *bytecode.Module {
	m := bytecode.NewModule()

	// poly(x) = 3x^2 + 2x + 1
	m.BeginFunction("poly", 1, 2)
	m.EmitNumber(3)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpMul)
	m.Emit(bytecode.OpMul)
	m.EmitNumber(2)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpMul)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpConstOne)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpReturn)
	m.EndFunction()

	// clamp01(x) = bounded to [0, 1] without branches:
	// x*(x>=0)*(x<=1) + (x>1)
	m.BeginFunction("clamp01", 1, 1)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpConstZero)
	m.Emit(bytecode.OpGe)
	m.Emit(bytecode.OpMul)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpConstOne)
	m.Emit(bytecode.OpLe)
	m.Emit(bytecode.OpMul)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpConstOne)
	m.Emit(bytecode.OpGt)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpReturn)
	m.EndFunction()

	// greet() concatenates strings, so translation declines it.
	m.BeginFunction("greet", 0, 0)
	m.EmitString("hot")
	m.EmitString("path")
	m.Emit(bytecode.OpConcat)
	m.Emit(bytecode.OpStrLen)
	m.Emit(bytecode.OpReturn)
	m.EndFunction()

	return m
}

func printStats(engine *jit.Engine, topN int) {
	stats := engine.Stats()
	fmt.Println()
	fmt.Println("engine statistics")
	fmt.Printf("  compiles attempted   %d\n", stats.Attempted)
	fmt.Printf("  compiles succeeded   %d\n", stats.Succeeded)
	fmt.Printf("  functions declined   %d\n", stats.Declined)
	fmt.Printf("  native hits          %d\n", stats.Hits)
	fmt.Printf("  interpreter calls    %d\n", stats.Misses)
	fmt.Printf("  hit rate             %.1f%%\n", stats.HitRate()*100)
	fmt.Printf("  cache residency      %d artifacts, %d/%d bytes\n",
		stats.Resident, stats.UsedBytes, engine.Capacity())
	fmt.Printf("  cache evictions      %d\n", stats.Evictions)

	hottest := engine.Hottest(topN)
	if len(hottest) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("hottest functions (top %d)\n", len(hottest))
	for _, e := range hottest {
		fmt.Printf("  %-16s %8d calls  [%s]\n", nameOrOffset(e), e.CallCount, e.Status)
	}
}

func nameOrOffset(e jit.HotspotEntry) string {
	if e.Name != "" {
		return e.Name
	}
	return "@" + strconv.FormatUint(uint64(e.Offset), 10)
}
