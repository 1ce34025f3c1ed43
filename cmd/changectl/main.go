// Command changectl operates the change service: schema migrations, reference
// data seeding, one-off escalation sweeps, risk previews and dev tokens.
package main

func main() {
	Execute()
}
