package main

import (
	"fmt"

	"github.com/talkwire/room-broadcast-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
