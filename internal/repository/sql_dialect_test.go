package repository

import (
	"strings"
	"testing"
)

func TestCharLengthExprByDialect(t *testing.T) {
	if got := charLengthExprByDialect("sqlite", "coupons.proxy_order_id"); got != "length(COALESCE(coupons.proxy_order_id, ''))" {
		t.Fatalf("sqlite length expr mismatch, got %s", got)
	}
	if got := charLengthExprByDialect("postgres", "coupons.proxy_order_id"); got != "char_length(COALESCE(coupons.proxy_order_id, ''))" {
		t.Fatalf("postgres length expr mismatch, got %s", got)
	}
}

func TestBuildLikeCondition(t *testing.T) {
	condition, argCount := buildLikeCondition(nil, []string{"code", " ", "tid"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if !strings.Contains(condition, `code LIKE ? ESCAPE '\'`) || !strings.Contains(condition, `tid LIKE ? ESCAPE '\'`) {
		t.Fatalf("unexpected condition: %s", condition)
	}
	pgCondition, _ := buildLikeConditionByDialect("postgres", []string{"code"})
	if pgCondition != `(code ILIKE ? ESCAPE '\')` {
		t.Fatalf("unexpected postgres condition: %s", pgCondition)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike("50%_off"); got != `50\%\_off` {
		t.Fatalf("unexpected escaped keyword: %s", got)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}
