package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core/user"
	"github.com/trezcool/xpcamp/core/xp"
)

type studentApi struct {
	ledger          XPLedger
	validate        *validator.Validate
	translator      ut.Translator
	leaderboardSize int
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	ledger XPLedger,
	validate *validator.Validate,
	translator ut.Translator,
	leaderboardSize int,
) {
	api := studentApi{
		ledger:          ledger,
		validate:        validate,
		translator:      translator,
		leaderboardSize: leaderboardSize,
	}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query, permissionMiddleware(user.Role.CanManageUsers))
	sg.GET("/leaderboard", api.leaderboard)

	// detail endpoints
	dg := sg.Group("/:id")
	dg.GET("", api.retrieve, selfOrTeacherMiddleware())
	dg.POST("/add-xp", api.addXP, permissionMiddleware(user.Role.CanGrantXP))
	dg.GET("/xp-history", api.history, selfOrTeacherMiddleware())
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(xp.AccountFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []xp.Account{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	accounts, err := api.ledger.QueryAccounts(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func (api *studentApi) leaderboard(ctx echo.Context) error {
	accounts, err := api.ledger.Leaderboard(ctx.Request().Context(), bindLimit(ctx, api.leaderboardSize))
	if err != nil {
		return errors.Wrap(err, "getting leaderboard")
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	acct, err := api.ledger.GetAccount(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *studentApi) addXP(ctx echo.Context) error {
	var data xp.GrantXP
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GrantXP")
	}
	data.StudentID = ctx.Param("id")

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	acct, err := api.ledger.Grant(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "granting xp")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *studentApi) history(ctx echo.Context) error {
	filter := new(xp.GrantFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []xp.Grant{})
	}
	if err := bindTimes(ctx, map[string]*time.Time{"from": &filter.From, "to": &filter.To}); err != nil {
		return ctx.JSON(http.StatusOK, []xp.Grant{})
	}
	filter.StudentID = ctx.Param("id")

	grants, err := api.ledger.History(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "getting xp history")
	}
	return ctx.JSON(http.StatusOK, grants)
}
