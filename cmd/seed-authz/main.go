// Command seed-authz writes the relationship tuples the vendor API checks
// (shop staff and platform admins) to an OpenFGA store and verifies them.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/authz"
)

func main() {
	_ = godotenv.Load()
	shopID := flag.String("shop", "udupi-corner", "shop to grant staff access to")
	staff := flag.String("staff", "alice", "comma-separated uids granted staff on -shop")
	admins := flag.String("admins", "ops", "comma-separated uids granted platform admin")
	flag.Parse()

	api := getenv("OPENFGA_API_URL", "http://localhost:8081")
	store := os.Getenv("OPENFGA_STORE_ID")
	if store == "" {
		log.Fatal("OPENFGA_STORE_ID not set. Create a store and export its ID.")
	}
	client := authz.NewOpenFGAClient(api, store)

	var tuples []authz.TupleKey
	for _, uid := range split(*staff) {
		tuples = append(tuples, authz.TupleKey{User: authz.UserPrincipal(uid), Relation: authz.RelationStaff, Object: authz.ShopObject(*shopID)})
	}
	for _, uid := range split(*admins) {
		tuples = append(tuples, authz.TupleKey{User: authz.UserPrincipal(uid), Relation: authz.RelationAdmin, Object: authz.AdminObject})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Write(ctx, tuples); err != nil {
		log.Fatalf("write tuples: %v", err)
	}
	log.Printf("seeded %d tuples", len(tuples))

	// Verify every grant, and that a stranger is denied.
	for _, tk := range tuples {
		allowed, err := client.Check(ctx, tk.User, tk.Object, tk.Relation)
		if err != nil {
			log.Fatalf("check %s %s %s: %v", tk.User, tk.Relation, tk.Object, err)
		}
		log.Printf("Check %s %s %s -> %v", tk.User, tk.Relation, tk.Object, allowed)
		if !allowed {
			os.Exit(1)
		}
	}
	denied, err := client.Check(ctx, authz.UserPrincipal("stranger"), authz.ShopObject(*shopID), authz.RelationStaff)
	if err != nil {
		log.Fatalf("check stranger: %v", err)
	}
	log.Printf("Check stranger staff -> %v", denied)
	if denied {
		os.Exit(1)
	}

	log.Println("Authz seed verification passed")
}

func split(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
