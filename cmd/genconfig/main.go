package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"statuspulse/cmd/genconfig/generator"
)

func main() {
	mode := flag.String("mode", "interactive", "生成模式: interactive(交互式) 或 template(模板快速生成)")
	template := flag.String("template", "", "模板名称 (仅在 mode=template 时使用)")
	output := flag.String("output", "", "输出文件路径 (不指定则输出到 stdout)")
	force := flag.Bool("force", false, "覆盖已存在的输出文件")
	listTemplates := flag.Bool("list", false, "列出所有可用模板")

	flag.Parse()

	// 列出模板
	if *listTemplates {
		registry := generator.NewTemplateRegistry()
		fmt.Println("📋 可用模板:")
		for _, name := range registry.ListTemplates() {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Println("\n使用方式: go run ./cmd/genconfig -mode template -template <name>")
		return
	}

	var config string
	var err error

	switch *mode {
	case "interactive":
		config, err = runInteractiveMode()
	case "template":
		if *template == "" {
			fmt.Println("❌ 模板模式需要指定 -template 参数")
			fmt.Println("使用 -list 查看所有可用模板")
			os.Exit(1)
		}
		config, err = generator.GenerateFromTemplate(*template)
	default:
		fmt.Printf("❌ 未知的模式: %s\n", *mode)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("❌ 生成配置失败: %v\n", err)
		os.Exit(1)
	}

	// 输出配置
	if *output == "" {
		fmt.Println(config)
	} else {
		if err := generator.WriteConfig(config, *output, *force); err != nil {
			fmt.Printf("❌ 写入文件失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ 配置已保存到: %s\n", *output)
	}
}

func runInteractiveMode() (string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("\n🚀 statuspulse 配置生成器 - 交互式模式")
	fmt.Println(strings.Repeat("=", 50))

	fmt.Println("\n📋 全局配置")
	opts := generator.Options{
		Mode:     promptEnumWithDefault(reader, "运行模式", "once", []string{"once", "loop"}),
		Interval: promptWithDefault(reader, "巡检间隔 (Go duration 格式，仅 loop 生效)", "5m"),
	}

	fmt.Println("\n📝 采集配置")
	opts.URL = prompt(reader, "状态页地址 (url)")
	opts.Strategy = promptEnumWithDefault(reader, "采集策略", "html", []string{"html", "browser", "regex", "json"})

	switch opts.Strategy {
	case "html", "browser":
		opts.Row = promptWithDefault(reader, "行选择器 (row)", ".service")
		opts.Name = promptWithDefault(reader, "服务名选择器 (name)", ".name")
		opts.Status = promptWithDefault(reader, "状态选择器 (status)", ".status")
	case "regex":
		opts.Pattern = prompt(reader, "正则 (需包含 (?P<name>...) 与 (?P<status>...))")
	case "json":
		opts.ItemsKey = promptWithDefault(reader, "服务列表字段 (items_key，支持 a.b 路径)", "services")
	}

	order := promptWithDefault(reader, "优先展示的服务 (逗号分隔)", "Steam Connection Managers")
	for _, o := range strings.Split(order, ",") {
		if o = strings.TrimSpace(o); o != "" {
			opts.Order = append(opts.Order, o)
		}
	}

	fmt.Println("\n💾 其他配置")
	opts.StorageType = promptEnumWithDefault(reader, "存储类型", "file", []string{"file", "sqlite"})
	opts.Chart = strings.ToLower(promptWithDefault(reader, "通知附带故障图表? (y/n)", "y")) == "y"

	return generator.GenerateConfig(opts)
}

func prompt(reader *bufio.Reader, label string) string {
	for {
		fmt.Printf("%s: ", label)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			return input
		}
		fmt.Println("❌ 不能为空，请重新输入")
	}
}

func promptWithDefault(reader *bufio.Reader, label, defaultValue string) string {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func promptEnumWithDefault(reader *bufio.Reader, label, defaultValue string, allowed []string) string {
	for {
		fmt.Printf("%s [%s] (%s): ", label, defaultValue, strings.Join(allowed, "/"))
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}
		inputLower := strings.ToLower(input)
		for _, a := range allowed {
			if inputLower == strings.ToLower(a) {
				return a // 返回标准值
			}
		}
		fmt.Printf("❌ 无效值: %s（支持: %s）\n", input, strings.Join(allowed, "/"))
	}
}
