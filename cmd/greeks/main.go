package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"vol-index-go/pricing"
)

// book 期权组合文件格式。
type book struct {
	Options []pricing.Option `yaml:"options"`
}

// 计算期权组合的 Black-Scholes Greeks。
// 用法：
//
//	go run ./cmd/greeks -book configs/book.yaml
//	go run ./cmd/greeks -book configs/book.yaml -vol 0.65   # 用波动率指数覆盖所有期权的波动率
func main() {
	bookPath := flag.String("book", "configs/book.yaml", "期权组合 YAML 文件")
	volOverride := flag.Float64("vol", 0, "若 >0 则覆盖每个期权的年化波动率")
	perOption := flag.Bool("each", false, "同时输出每个期权的 Greeks")
	flag.Parse()

	b, err := loadBook(*bookPath)
	if err != nil {
		log.Fatalf("读取期权组合失败: %v", err)
	}
	if len(b.Options) == 0 {
		log.Fatal("期权组合为空")
	}
	if *volOverride > 0 {
		for i := range b.Options {
			b.Options[i].Volatility = *volOverride
		}
	}

	calc := pricing.NewCalculator()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *perOption {
		for i, o := range b.Options {
			g, err := calc.Greeks(o)
			if err != nil {
				log.Fatalf("option %d: %v", i, err)
			}
			fmt.Printf("option %d %s K=%v:\n", i, o.Type, o.Strike)
			_ = enc.Encode(g)
		}
	}

	total, err := calc.Portfolio(b.Options)
	if err != nil {
		log.Fatalf("计算失败: %v", err)
	}
	fmt.Println("portfolio:")
	if err := enc.Encode(total); err != nil {
		log.Fatalf("输出失败: %v", err)
	}
}

func loadBook(path string) (book, error) {
	var b book
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("parse yaml: %w", err)
	}
	return b, nil
}
