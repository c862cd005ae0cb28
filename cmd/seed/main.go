// Command seed fills a database with a demo family: an admin and a member,
// a few banks, a budget, expense groups with categories spread over the
// current month, and two loans.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/database"
	"github.com/dukerupert/homebudget/internal/logging"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

func main() {
	dbPath := flag.String("db", "homebudget.db", "SQLite database path")
	password := flag.String("password", "homebudget-demo", "password for the seeded users")
	groups := flag.Int("groups", 4, "expense groups to create")
	seed := flag.Int64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	logger := logging.Setup("info", "text")

	if *seed != 0 {
		gofakeit.Seed(*seed)
	}

	if err := run(*dbPath, *password, *groups, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(dbPath, password string, groupCount int, logger *slog.Logger) error {
	db, err := database.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	users := store.NewUserStore(db)
	families := store.NewFamilyStore(db)
	banks := store.NewBankStore(db)
	budgets := store.NewBudgetStore(db)
	groupStore := store.NewGroupStore(db)
	loans := store.NewLoanStore(db)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	lastName := gofakeit.LastName()

	admin, err := users.Create(gofakeit.Email(), gofakeit.FirstName()+" "+lastName, hash)
	if err != nil {
		return err
	}
	family, err := families.CreateWithOwner("The "+lastName+"s", admin.ID, now)
	if err != nil {
		return err
	}

	member, err := users.Create(gofakeit.Email(), gofakeit.FirstName()+" "+lastName, hash)
	if err != nil {
		return err
	}
	if _, err := families.AddMember(family.ID, member.ID, model.RoleMember); err != nil {
		return err
	}

	var bankIDs []int64
	for _, owner := range []int64{admin.ID, admin.ID, member.ID} {
		bank, err := banks.Create(family.ID, owner, gofakeit.Company(), cents(gofakeit.Price(100, 20000)))
		if err != nil {
			return err
		}
		bankIDs = append(bankIDs, bank.ID)
	}

	income := cents(gofakeit.Price(3000, 9000))
	if _, err := budgets.Create(family.ID, income/2, income, 0, now); err != nil {
		return err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	categories := 0
	for i := 0; i < groupCount; i++ {
		author := admin.ID
		if i%2 == 1 {
			author = member.ID
		}
		group, err := groupStore.Create(family.ID, author, gofakeit.HipsterWord())
		if err != nil {
			return err
		}

		for j := gofakeit.Number(2, 5); j > 0; j-- {
			var bankID *int64
			if gofakeit.Bool() {
				id := bankIDs[gofakeit.Number(0, len(bankIDs)-1)]
				bankID = &id
			}
			createdAt := monthStart.AddDate(0, 0, gofakeit.Number(0, now.Day()-1)).
				Add(time.Duration(gofakeit.Number(0, 23)) * time.Hour)
			if _, err := groupStore.AddCategory(
				group.ID, author,
				gofakeit.Noun(), gofakeit.Sentence(5),
				cents(gofakeit.Price(5, 800)), bankID, createdAt,
			); err != nil {
				return err
			}
			categories++
		}
	}

	for _, kind := range []string{model.LoanFixed, model.LoanDecreasing} {
		months := gofakeit.Number(12, 240)
		day := gofakeit.Number(1, 28)
		last := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC).AddDate(0, months-1, 0)
		if _, err := loans.Create(family.ID, admin.ID, model.Loan{
			Name:                  gofakeit.Company() + " loan",
			AmountRemaining:       model.FromCents(cents(gofakeit.Price(5000, 300000))),
			LoanType:              kind,
			InterestRate:          decimal.NewFromFloat(gofakeit.Float64Range(1, 12)).Round(2),
			PaymentDay:            day,
			LastPaymentDate:       last.Format(time.DateOnly),
			InstallmentsRemaining: months,
		}); err != nil {
			return err
		}
	}

	logger.Info("seeded demo family",
		"family_id", family.ID,
		"groups", groupCount,
		"categories", categories,
		"loans", 2,
	)
	fmt.Printf("Log in as %s or %s with password %q\n", admin.Email, member.Email, password)
	return nil
}

func cents(f float64) int64 {
	return model.ToCents(decimal.NewFromFloat(f))
}
