package main

import "github.com/dh1tw/tunnelsink/cmd"

func main() {
	cmd.Execute()
}
