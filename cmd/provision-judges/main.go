package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"strings"

	"innovation-review-api/config"
	"innovation-review-api/services"

	"github.com/joho/godotenv"
)

func main() {
	var (
		usersFlag    = flag.String("users", "", "comma separated user_id values to provision as judges")
		capacityFlag = flag.Int("capacity", 0, "maximum concurrent non-locked assignments (0 = use default_judge_capacity)")
		tagsFlag     = flag.String("tags", "", "comma separated expertise tags")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}
	config.InitLogging()

	targetUserIDs, err := parseIDs(*usersFlag)
	if err != nil {
		log.Fatalf("invalid -users: %v", err)
	}
	if len(targetUserIDs) == 0 {
		log.Fatal("-users is empty. Please pass at least one user_id.")
	}

	config.InitDB()

	opts := services.JudgeOptions{ExpertiseTags: splitList(*tagsFlag)}
	if *capacityFlag > 0 {
		opts.Capacity = capacityFlag
	}
	provisioner := services.NewJudgeProvisioner(config.DB, services.NewSettingsService(config.DB))

	var (
		succeeded int
		failed    []string
	)
	ctx := context.Background()
	for _, userID := range targetUserIDs {
		judge, created, err := provisioner.Provision(ctx, userID, opts)
		if err != nil {
			log.Printf("failed to provision user_id=%d: %v", userID, err)
			failed = append(failed, "user_id="+strconv.Itoa(userID)+" ("+err.Error()+")")
			continue
		}
		if created {
			log.Printf("judge %d created for user_id=%d", judge.ID, userID)
		} else {
			log.Printf("judge %d already existed for user_id=%d", judge.ID, userID)
		}
		succeeded++
	}

	if len(failed) > 0 {
		log.Fatalf("completed with errors. successful: %d, failed: %s", succeeded, strings.Join(failed, ", "))
	}
	log.Printf("provisioned %d judge(s)", succeeded)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range splitList(raw) {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
