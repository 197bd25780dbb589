// Command ussdflow serves, validates and simulates USSD flows.
package main

func main() {
	Execute()
}
