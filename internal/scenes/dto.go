package scenes

import (
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
)

// PanelInput is one panel of a page as submitted by the author.
type PanelInput struct {
	PanelNo  int      `json:"panel_no" validate:"required,min=1,max=4"`
	Dialogue []string `json:"dialogue" validate:"dive,max=500"`
	Action   string   `json:"action" validate:"required,max=1000"`
	Setting  string   `json:"setting" validate:"required,max=1000"`
	Caption  *string  `json:"caption" validate:"omitempty,max=500"`
}

// PageInput is one page of exactly four panels.
type PageInput struct {
	PageNo int          `json:"page_no" validate:"required,min=1"`
	Panels []PanelInput `json:"panels" validate:"required,len=4"`
}

// ReplaceScenesRequest swaps a project's entire script for the given pages.
type ReplaceScenesRequest struct {
	Pages []PageInput `json:"pages" validate:"required,min=1,dive"`
}

// SceneDTO is the transport shape of a stored panel.
type SceneDTO struct {
	PanelNo  int      `json:"panel_no"`
	Dialogue []string `json:"dialogue"`
	Action   string   `json:"action"`
	Setting  string   `json:"setting"`
	Caption  *string  `json:"caption"`
}

// PageDTO groups the four panels of a page.
type PageDTO struct {
	PageNo int        `json:"page_no"`
	Panels []SceneDTO `json:"panels"`
}

func sceneFromModel(s models.Scene) SceneDTO {
	dialogue := []string(s.Dialogue)
	if dialogue == nil {
		dialogue = []string{}
	}
	return SceneDTO{
		PanelNo:  s.PanelNo,
		Dialogue: dialogue,
		Action:   s.Action,
		Setting:  s.Setting,
		Caption:  s.Caption,
	}
}

// pagesFromModels assumes the input is ordered by page then panel.
func pagesFromModels(scenes []models.Scene) []PageDTO {
	var pages []PageDTO
	for _, s := range scenes {
		if len(pages) == 0 || pages[len(pages)-1].PageNo != s.PageNo {
			pages = append(pages, PageDTO{PageNo: s.PageNo})
		}
		last := &pages[len(pages)-1]
		last.Panels = append(last.Panels, sceneFromModel(s))
	}
	return pages
}
