package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/store"
	"github.com/trezcool/xpcamp/core/user"
)

type storeApi struct {
	svc        StoreService
	validate   *validator.Validate
	translator ut.Translator
}

func registerStoreAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc StoreService,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := storeApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}
	storeManager := permissionMiddleware(user.Role.CanManageStore)

	sg := g.Group("/store", jwt)

	ig := sg.Group("/items")
	ig.GET("", api.queryItems)
	ig.POST("", api.createItem, storeManager)
	ig.GET("/:id", api.retrieveItem)
	ig.PUT("/:id", api.updateItem, storeManager)
	ig.DELETE("/:id", api.destroyItem, storeManager)

	tg := sg.Group("/transactions")
	tg.GET("", api.queryTransactions)
	tg.POST("", api.purchase)
	tg.GET("/:id", api.retrieveTransaction)
}

// Items

func (api *storeApi) queryItems(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	filter := new(store.ItemFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []store.Item{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	items, err := api.svc.QueryItems(ctx.Request().Context(), filter, ordering.Orderings, claims.UserRole())
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *storeApi) retrieveItem(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	it, err := api.svc.GetItem(ctx.Request().Context(), ctx.Param("id"), claims.UserRole())
	if err != nil {
		return errors.Wrap(err, "getting item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *storeApi) createItem(ctx echo.Context) error {
	var data store.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	it, err := api.svc.CreateItem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *storeApi) updateItem(ctx echo.Context) error {
	var data store.UpdateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	it, err := api.svc.UpdateItem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *storeApi) destroyItem(ctx echo.Context) error {
	if err := api.svc.DeleteItem(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Transactions

func (api *storeApi) queryTransactions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	filter := new(store.TransactionFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []store.Transaction{})
	}
	err = bindTimes(ctx, map[string]*time.Time{"timestamp_from": &filter.From, "timestamp_to": &filter.To})
	if err != nil {
		return ctx.JSON(http.StatusOK, []store.Transaction{})
	}
	filter.Clean()

	// students only see their own purchases
	if filter.StudentID != "" && !claims.UserRole().CanActFor(claims.Subject, filter.StudentID) {
		return ctx.JSON(http.StatusOK, []store.Transaction{})
	}
	if !claims.UserRole().CanManageUsers() {
		filter.StudentID = claims.Subject
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	trs, err := api.svc.QueryTransactions(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, trs)
}

func (api *storeApi) retrieveTransaction(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	tr, err := api.svc.GetTransaction(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	// hide the purchases of other students
	if !claims.UserRole().CanActFor(claims.Subject, tr.StudentID) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, tr)
}

func (api *storeApi) purchase(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data PurchaseRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PurchaseRequest")
	}
	data.Clean()
	if data.StudentID == "" && claims.UserRole() == user.RoleStudent {
		data.StudentID = claims.Subject
	}
	if err = core.ValidateStruct(api.validate, api.translator, data); err != nil {
		return err
	}
	if !claims.UserRole().CanActFor(claims.Subject, data.StudentID) {
		return errHttpForbidden
	}

	tr, err := api.svc.Purchase(ctx.Request().Context(), data.StudentID, data.ItemID)
	if err != nil {
		return errors.Wrap(err, "purchasing item")
	}
	return ctx.JSON(http.StatusCreated, tr)
}

// PurchaseRequest buys one unit of an item. Students may omit StudentID to buy for themselves.
type PurchaseRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ItemID    string `json:"item_id" validate:"required"`
}

func (pr *PurchaseRequest) Clean() {
	pr.StudentID = core.CleanString(pr.StudentID)
	pr.ItemID = core.CleanString(pr.ItemID)
}
