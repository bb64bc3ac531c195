// Package cli is the interactive command-line front end for the
// checkbook protocol, adapted from the teacher's flag.FlagSet-per-command
// dispatcher (cli/cli.go in the original) to drive bank.Bank and
// device.Device instead of blockchain.Blockchain and wallet.Wallet.
package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/offlinecheck/checkbook/checkbook/bank"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/checkbook/device"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/checkbook/protocol"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
	"github.com/offlinecheck/checkbook/persistence/ledger"
)

const ledgerPathPattern = "./tmp/bank_ledger_%d"

// CommandLine is the entry point for the ahd (account-holder device)
// command-line tool.
type CommandLine struct {
	Registry *bank.Registry
	Cfg      config.Config
	Clk      clock.Clock
}

// New builds a CommandLine sharing one registry and configuration across
// every bank it opens in a single process run.
func New() *CommandLine {
	return &CommandLine{
		Registry: bank.NewRegistry(),
		Cfg:      config.Default(),
		Clk:      clock.System{},
	}
}

func (cli *CommandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println(" createbank -id ID - create a bank and its ledger")
	fmt.Println(" createaccount -bank ID -owner NAME -credit MAXCREDIT - open an account")
	fmt.Println(" createdevice -bank ID -account ACCOUNTID -label LABEL -cap MONTHLYCAP - register a device")
	fmt.Println(" issuecheck -bank ID -device LABEL -value VALUE - mint a check to a device")
	fmt.Println(" balance -label LABEL - show a device's unspent check total")
	fmt.Println(" setonline -label LABEL -online true|false - toggle a device's online attribute")
	fmt.Println(" transfer -from LABEL -to LABEL -amount AMOUNT - run an offline note exchange between two devices")
	fmt.Println(" handin -bank ID -notefile FILE - hand a signed note in to its issuing bank")
	fmt.Println(" redeem -bank ID -notefile FILE - redeem a signed note against its issuing bank")
	fmt.Println(" advancemonth -bank ID - run a bank's monthly rollover procedures")
}

func (cli *CommandLine) validateArgs() {
	if len(os.Args) < 2 {
		cli.printUsage()
		runtime.Goexit()
	}
}

func (cli *CommandLine) openLedger(bankID uint32) *ledger.Store {
	path := fmt.Sprintf(ledgerPathPattern, bankID)
	store, err := ledger.Open(path)
	if err != nil {
		log.Panic(err)
	}
	return store
}

func (cli *CommandLine) createBank(bankID uint32) {
	store := cli.openLedger(bankID)
	defer store.Close()

	if _, err := store.LoadBank(bankID, cli.Cfg, cli.Clk, cli.Registry); err == nil {
		fmt.Printf("Bank %d already exists\n", bankID)
		return
	}

	priv, err := xcrypto.GenerateKey()
	if err != nil {
		log.Panic(err)
	}
	b := bank.New(bankID, priv, cli.Cfg, cli.Clk, cli.Registry)
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Printf("Bank %d created\n", bankID)
}

func (cli *CommandLine) loadBank(bankID uint32) (*bank.Bank, *ledger.Store) {
	store := cli.openLedger(bankID)
	b, err := store.LoadBank(bankID, cli.Cfg, cli.Clk, cli.Registry)
	if err != nil {
		log.Panic(err)
	}
	return b, store
}

func (cli *CommandLine) createAccount(bankID uint32, owner string, maxCredit uint32) {
	b, store := cli.loadBank(bankID)
	defer store.Close()

	a := b.AddAccount(owner, &maxCredit)
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Printf("Account %s created for %s\n", a.ID, owner)
}

func (cli *CommandLine) createDevice(bankID uint32, accountID, label string, monthlyCap uint32) {
	b, store := cli.loadBank(bankID)
	defer store.Close()

	account, ok := b.Account(accountID)
	if !ok {
		log.Panic(fmt.Errorf("cli: no such account %s", accountID))
	}

	priv, err := xcrypto.GenerateKey()
	if err != nil {
		log.Panic(err)
	}
	d := device.New(priv, cli.Cfg, cli.Clk)
	d.RegisterBank(bankID, b.PublicKey())

	var capArg *uint32
	if monthlyCap != 0 {
		capArg = &monthlyCap
	}
	if _, err := b.AddDevice(account, d.PublicKey(), capArg); err != nil {
		log.Panic(err)
	}
	if err := d.SaveFile(label); err != nil {
		log.Panic(err)
	}
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Printf("Device %s registered to account %s\n", label, accountID)
}

func (cli *CommandLine) loadDevice(label string) *device.Device {
	d, err := device.LoadDevice(label, cli.Cfg, cli.Clk)
	if err != nil {
		log.Panic(err)
	}
	return d
}

func (cli *CommandLine) issueCheck(bankID uint32, label string, value uint32) {
	b, store := cli.loadBank(bankID)
	defer store.Close()
	d := cli.loadDevice(label)

	c, err := b.IssueCheck(d.PublicKey(), value)
	if err != nil {
		log.Panic(err)
	}
	if err := d.AddUnspentCheck(c); err != nil {
		log.Panic(err)
	}
	if err := d.SaveFile(label); err != nil {
		log.Panic(err)
	}
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Printf("Issued check worth %d to %s\n", value, label)
}

func (cli *CommandLine) balance(label string) {
	d := cli.loadDevice(label)
	fmt.Printf("%s unspent total: %d\n", label, d.TotalUnspentCheckValue())
}

func (cli *CommandLine) setOnline(label string, online bool) {
	d := cli.loadDevice(label)
	d.SetOnline(online)
	if err := d.SaveFile(label); err != nil {
		log.Panic(err)
	}
	fmt.Printf("%s online: %v\n", label, online)
}

func (cli *CommandLine) transfer(fromLabel, toLabel string, amount uint32) {
	buyer := cli.loadDevice(fromLabel)
	seller := cli.loadDevice(toLabel)

	n, err := protocol.CreatePromissoryNote(seller, buyer, amount)
	if err != nil {
		log.Panic(err)
	}
	if err := buyer.SaveFile(fromLabel); err != nil {
		log.Panic(err)
	}
	if err := seller.SaveFile(toLabel); err != nil {
		log.Panic(err)
	}

	// Load every bank the buyer knows so verification can resolve the
	// issuing bank and device certificate of each committed check.
	for _, id := range buyer.KnownBankIDs() {
		_, store := cli.loadBank(id)
		store.Close()
	}
	if err := protocol.VerifyPromissoryNote(n, cli.Clk, cli.Registry); err != nil {
		log.Panic(err)
	}
	wire := n.Encode()
	fmt.Printf("Note signed, %d bytes. Hand it in with -notefile to settle.\n", len(wire))
	if err := os.WriteFile(fmt.Sprintf("./tmp/note_%s_%s.bin", fromLabel, toLabel), wire, 0644); err != nil {
		log.Panic(err)
	}
}

func (cli *CommandLine) readNote(path string) []byte {
	wire, err := os.ReadFile(path)
	if err != nil {
		log.Panic(err)
	}
	return wire
}

func (cli *CommandLine) handIn(bankID uint32, notefile string) {
	b, store := cli.loadBank(bankID)
	defer store.Close()

	n, rest, err := note.DecodeNote(cli.readNote(notefile))
	if err != nil || len(rest) != 0 {
		log.Panic(fmt.Errorf("cli: malformed note file"))
	}
	if err := b.HandInPromissoryNote(n); err != nil {
		log.Panic(err)
	}
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Println("Note handed in")
}

func (cli *CommandLine) redeem(bankID uint32, notefile string) {
	b, store := cli.loadBank(bankID)
	defer store.Close()

	n, rest, err := note.DecodeNote(cli.readNote(notefile))
	if err != nil || len(rest) != 0 {
		log.Panic(fmt.Errorf("cli: malformed note file"))
	}
	if err := b.RedeemPromissoryNote(n); err != nil {
		log.Panic(err)
	}
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Println("Note redeemed")
}

func (cli *CommandLine) advanceMonth(bankID uint32) {
	b, store := cli.loadBank(bankID)
	defer store.Close()

	b.ResetIssuedCheckValueCounters()
	b.ResetMonthlySpendingCaps()
	b.RemoveExpiredNotes()
	if err := store.SaveBank(b); err != nil {
		log.Panic(err)
	}
	fmt.Printf("Bank %d advanced to the next month\n", bankID)
}

// Run parses os.Args and dispatches to the matching subcommand.
func (cli *CommandLine) Run() {
	cli.validateArgs()

	createBankCMD := flag.NewFlagSet("createbank", flag.ExitOnError)
	createAccountCMD := flag.NewFlagSet("createaccount", flag.ExitOnError)
	createDeviceCMD := flag.NewFlagSet("createdevice", flag.ExitOnError)
	issueCheckCMD := flag.NewFlagSet("issuecheck", flag.ExitOnError)
	balanceCMD := flag.NewFlagSet("balance", flag.ExitOnError)
	setOnlineCMD := flag.NewFlagSet("setonline", flag.ExitOnError)
	transferCMD := flag.NewFlagSet("transfer", flag.ExitOnError)
	handInCMD := flag.NewFlagSet("handin", flag.ExitOnError)
	redeemCMD := flag.NewFlagSet("redeem", flag.ExitOnError)
	advanceMonthCMD := flag.NewFlagSet("advancemonth", flag.ExitOnError)

	createBankID := createBankCMD.Uint("id", 0, "bank identifier")

	createAccountBank := createAccountCMD.Uint("bank", 0, "bank identifier")
	createAccountOwner := createAccountCMD.String("owner", "", "account owner name")
	createAccountCredit := createAccountCMD.Uint("credit", 0, "max credit")

	createDeviceBank := createDeviceCMD.Uint("bank", 0, "bank identifier")
	createDeviceAccount := createDeviceCMD.String("account", "", "account ID")
	createDeviceLabel := createDeviceCMD.String("label", "", "device label")
	createDeviceCap := createDeviceCMD.Uint("cap", 0, "monthly cap (0 = bank default)")

	issueCheckBank := issueCheckCMD.Uint("bank", 0, "bank identifier")
	issueCheckLabel := issueCheckCMD.String("device", "", "device label")
	issueCheckValue := issueCheckCMD.Uint("value", 0, "check value")

	balanceLabel := balanceCMD.String("label", "", "device label")

	setOnlineLabel := setOnlineCMD.String("label", "", "device label")
	setOnlineFlag := setOnlineCMD.Bool("online", false, "online state")

	transferFrom := transferCMD.String("from", "", "buyer device label")
	transferTo := transferCMD.String("to", "", "seller device label")
	transferAmount := transferCMD.Uint("amount", 0, "amount")

	handInBank := handInCMD.Uint("bank", 0, "bank identifier")
	handInFile := handInCMD.String("notefile", "", "path to a signed note")

	redeemBank := redeemCMD.Uint("bank", 0, "bank identifier")
	redeemFile := redeemCMD.String("notefile", "", "path to a signed note")

	advanceMonthBank := advanceMonthCMD.Uint("bank", 0, "bank identifier")

	switch os.Args[1] {
	case "createbank":
		must(createBankCMD.Parse(os.Args[2:]))
	case "createaccount":
		must(createAccountCMD.Parse(os.Args[2:]))
	case "createdevice":
		must(createDeviceCMD.Parse(os.Args[2:]))
	case "issuecheck":
		must(issueCheckCMD.Parse(os.Args[2:]))
	case "balance":
		must(balanceCMD.Parse(os.Args[2:]))
	case "setonline":
		must(setOnlineCMD.Parse(os.Args[2:]))
	case "transfer":
		must(transferCMD.Parse(os.Args[2:]))
	case "handin":
		must(handInCMD.Parse(os.Args[2:]))
	case "redeem":
		must(redeemCMD.Parse(os.Args[2:]))
	case "advancemonth":
		must(advanceMonthCMD.Parse(os.Args[2:]))
	default:
		cli.printUsage()
		runtime.Goexit()
	}

	if createBankCMD.Parsed() {
		cli.createBank(uint32(*createBankID))
	}
	if createAccountCMD.Parsed() {
		cli.createAccount(uint32(*createAccountBank), *createAccountOwner, uint32(*createAccountCredit))
	}
	if createDeviceCMD.Parsed() {
		cli.createDevice(uint32(*createDeviceBank), *createDeviceAccount, *createDeviceLabel, uint32(*createDeviceCap))
	}
	if issueCheckCMD.Parsed() {
		cli.issueCheck(uint32(*issueCheckBank), *issueCheckLabel, uint32(*issueCheckValue))
	}
	if balanceCMD.Parsed() {
		cli.balance(*balanceLabel)
	}
	if setOnlineCMD.Parsed() {
		cli.setOnline(*setOnlineLabel, *setOnlineFlag)
	}
	if transferCMD.Parsed() {
		cli.transfer(*transferFrom, *transferTo, uint32(*transferAmount))
	}
	if handInCMD.Parsed() {
		cli.handIn(uint32(*handInBank), *handInFile)
	}
	if redeemCMD.Parsed() {
		cli.redeem(uint32(*redeemBank), *redeemFile)
	}
	if advanceMonthCMD.Parsed() {
		cli.advanceMonth(uint32(*advanceMonthBank))
	}
}

func must(err error) {
	if err != nil {
		log.Panic(err)
	}
}
