package main

import (
	"fmt"
	"log"

	"github.com/ecc1/radio"
	"github.com/ecc1/rfm9x"
)

func main() {
	r := rfm9x.Open(rfm9x.DefaultConfig())
	if r.Error() != nil {
		log.Fatal(r.Error())
	}
	defer r.Close()
	fmt.Printf("version: %02X\n", r.Version())
	fmt.Printf("state: %s\n", r.State())
	fmt.Printf("modem: %s\n", r.ModemConfig().Name)
	fmt.Printf("old frequency: %s MHz\n", radio.MegaHertz(r.Frequency()))
	if err := r.SetFrequency(915000000); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("new frequency: %s MHz\n", radio.MegaHertz(r.Frequency()))
}
