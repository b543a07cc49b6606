package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type MenuController struct {
	Catalog *services.CatalogService
}

func NewMenuController(catalog *services.CatalogService) *MenuController {
	return &MenuController{Catalog: catalog}
}

// GetAllMenus -> ?all=true juga menampilkan menu yang tidak tersedia
func (mc *MenuController) GetAllMenus(c *gin.Context) {
	menus, err := mc.Catalog.List(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menus", menus)
}

func (mc *MenuController) GetMenuByID(c *gin.Context) {
	menu, err := mc.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu detail", menu)
}

func (mc *MenuController) CreateMenu(c *gin.Context) {
	var req services.MenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	menu, err := mc.Catalog.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.InfoLogger.WithField("menu", menu.ID).Infof("Menu created: %s", menu.Name)
	utils.RespondJSON(c, http.StatusCreated, "Menu created", menu)
}
