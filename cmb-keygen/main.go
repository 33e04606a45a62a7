package main

import (
	"flag"
	"fmt"
	"os"

	smgr "github.com/dermesser/clustermsg/securitymanager"
)

func main() {
	fmt.Println("Generating key pair...")

	var pubfile, privfile string

	flag.StringVar(&pubfile, "pub", "publickey.txt", "File to write public key to.")
	flag.StringVar(&privfile, "priv", "privatekey.txt", "File to write private key to.")

	flag.Parse()

	mgr, err := smgr.NewPeerSecurityManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err = mgr.WriteKeys(pubfile, privfile); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
