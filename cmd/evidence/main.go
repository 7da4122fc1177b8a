// Command evidence 证据完整性与锚定命令行工具
package main

func main() {
	Execute()
}
