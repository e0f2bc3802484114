package auth

// Permission names as assigned to roles by the backend.
const (
	PermDashboardView = "dashboard-view"

	PermExpenseList   = "expense-list"
	PermExpenseCreate = "expense-create"
	PermExpenseEdit   = "expense-edit"
	PermExpenseDelete = "expense-delete"

	PermHotelExpenseList   = "hotel-expense-list"
	PermHotelExpenseCreate = "hotel-expense-create"
	PermHotelExpenseEdit   = "hotel-expense-edit"
	PermHotelExpenseDelete = "hotel-expense-delete"

	PermExpenseCategoryList   = "expense-category-list"
	PermExpenseCategoryCreate = "expense-category-create"
	PermExpenseCategoryEdit   = "expense-category-edit"
	PermExpenseCategoryDelete = "expense-category-delete"

	PermProductCategoryList   = "product-category-list"
	PermProductCategoryCreate = "product-category-create"
	PermProductCategoryEdit   = "product-category-edit"
	PermProductCategoryDelete = "product-category-delete"

	PermSalaryList   = "salary-list"
	PermSalaryCreate = "salary-create"
	PermSalaryEdit   = "salary-edit"
	PermSalaryDelete = "salary-delete"

	PermRoleList   = "role-list"
	PermRoleCreate = "role-create"
	PermRoleEdit   = "role-edit"
	PermRoleDelete = "role-delete"

	PermPermissionList   = "permission-list"
	PermPermissionCreate = "permission-create"
	PermPermissionEdit   = "permission-edit"
	PermPermissionDelete = "permission-delete"

	PermTicketList   = "ticket-list"
	PermTicketCreate = "ticket-create"
	PermTicketEdit   = "ticket-edit"
	PermTicketDelete = "ticket-delete"
)
