package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
)

// GeneratedConfig file written by the wizard.
const GeneratedConfig = "config.gen.yaml"

const title = "PAPERTRADE CONFIG WIZARD"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and returns the path of the saved config.
func RunTUI() (string, error) {
	cfg := config.Default()

	var (
		mode         = string(cfg.Mode)
		source       = cfg.Feed.Source
		baseURL      string
		symbol       = cfg.Symbol
		userID       = cfg.UserID
		pollInterval = cfg.Feed.PollInterval.String()
		notional     = cfg.Trade.Notional.String()
		sellFraction = cfg.Trade.SellFraction.String()
		balance      = cfg.Wallet.InitialBalance.String()
		storeDir     = "./data/wallets"
		tradeLogDir  = "./data/trades"
		confirm      bool
	)

	step := func(name string) {
		fmt.Print("\033[H\033[2J") // clear screen
		fmt.Println(headerStyle.Render(title))
		fmt.Println(stepStyle.Render(name))
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Paper trading with a wallet that never touches a real exchange.\n"))

	fmt.Println(stepStyle.Render("STEP 1: MODE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What should this instance serve?").
				Options(
					huh.NewOption("Testnet ledger and synchronized wallets", string(config.ModeAll)),
					huh.NewOption("Testnet ledger only", string(config.ModeTestnet)),
					huh.NewOption("Synchronized wallets only", string(config.ModeSynchronized)),
				).
				Value(&mode),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 2: PRICE FEED")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do prices come from?").
				Options(
					huh.NewOption("Simulated market (offline)", config.SourceSimulated),
					huh.NewOption("Remote testnet server", config.SourceTestnet),
					huh.NewOption("CoinGecko", config.SourceCoinGecko),
					huh.NewOption("Binance public klines", config.SourceBinance),
					huh.NewOption("Bybit spot tickers", config.SourceBybit),
					huh.NewOption("Hyperliquid perp candles", config.SourceHyperliquid),
				).
				Value(&source),
		),
	).Run()
	if err != nil {
		return "", err
	}

	if source == config.SourceTestnet {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Testnet base URL").
					Description("e.g. http://localhost:8080").
					Value(&baseURL).
					Validate(notEmpty("base url")),
			),
		).Run()
		if err != nil {
			return "", err
		}
	}

	coinOptions := make([]huh.Option[string], 0, len(pricefeed.DefaultCoins()))
	for _, c := range pricefeed.DefaultCoins() {
		coinOptions = append(coinOptions, huh.NewOption(c.Name+" ("+c.Symbol+")", c.ID))
	}

	step("STEP 3: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Coin tracked by the portfolio view").
				Options(coinOptions...).
				Value(&symbol),
			huh.NewInput().
				Title("User ID").
				Description("Wallet owner of the default session").
				Value(&userID).
				Validate(notEmpty("user id")),
			huh.NewInput().
				Title("Poll Price Interval").
				Description("Duration string (e.g. 5s, 30s, 1m)").
				Value(&pollInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 4: TRADING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("BUY notional").
				Description("Currency spent per BUY (e.g. 1000)").
				Value(&notional).
				Validate(validatePositive),
			huh.NewInput().
				Title("SELL fraction").
				Description("Share of holdings sold per SELL, in (0, 1]").
				Value(&sellFraction).
				Validate(validateFraction),
			huh.NewInput().
				Title("Initial balance").
				Description("Cash of a new wallet (e.g. 10000)").
				Value(&balance).
				Validate(validatePositive),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 5: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Wallet directory").
				Description("Empty keeps wallets in memory").
				Value(&storeDir),
			huh.NewInput().
				Title("Trade log directory").
				Description("Empty keeps testnet trades in memory").
				Value(&tradeLogDir),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Mode: %s\nFeed: %s\nCoin: %s\nUser: %s\nInterval: %s\nNotional: %s\nSell fraction: %s\n",
		mode, source, symbol, userID, pollInterval, notional, sellFraction,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	cfg.Mode = config.Mode(mode)
	cfg.Feed.Source = source
	cfg.Feed.BaseURL = baseURL
	cfg.Symbol = symbol
	cfg.UserID = userID
	cfg.Feed.PollInterval, _ = time.ParseDuration(pollInterval)
	cfg.Trade.Notional = decimal.RequireFromString(notional)
	cfg.Trade.SellFraction = decimal.RequireFromString(sellFraction)
	cfg.Wallet.InitialBalance = decimal.RequireFromString(balance)
	cfg.StoreDir = storeDir
	cfg.TradeLogDir = tradeLogDir

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := Save(GeneratedConfig, cfg); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting papertrade...", GeneratedConfig)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return GeneratedConfig, nil
}

// Save writes cfg as yaml.
func Save(path string, cfg config.Config) error {
	data, err := yaml.Marshal(config.ToTmp(cfg))
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateFraction(s string) error {
	if err := validatePositive(s); err != nil {
		return err
	}
	if decimal.RequireFromString(s).GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must not exceed 1")
	}
	return nil
}
