// cbzxl - утилита массовой конвертации CBZ архивов в JPEG XL.
package main

import "github.com/artemshloyda/cbzxl/internal/cli"

func main() {
	cli.Execute()
}
